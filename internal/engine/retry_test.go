package engine

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"
	"time"

	"github.com/hiveworks/hive/internal/port/provider"
	"github.com/hiveworks/hive/internal/resilience"
)

func TestRetryableClassification(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context cancelled", context.Canceled, false},
		{"deadline exceeded", context.DeadlineExceeded, false},
		{"wrapped cancellation", fmt.Errorf("call: %w", context.Canceled), false},
		{"circuit open", resilience.ErrCircuitOpen, true},
		{"status 429", &provider.StatusError{Code: 429}, true},
		{"status 502", &provider.StatusError{Code: 502}, true},
		{"status 503", &provider.StatusError{Code: 503}, true},
		{"status 504", &provider.StatusError{Code: 504}, true},
		{"status 400", &provider.StatusError{Code: 400}, false},
		{"status 500", &provider.StatusError{Code: 500}, false},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"connection reset", syscall.ECONNRESET, true},
		{"timeout message", errors.New("upstream timeout waiting for response"), true},
		{"rate limit message", errors.New("rate limit exceeded"), true},
		{"plain failure", errors.New("boom"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := Retryable(c.err); got != c.want {
				t.Fatalf("Retryable(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestLinearBackoffGrows(t *testing.T) {
	b := &linearBackoff{base: time.Second}

	for i, want := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
		got, stop := b.Next()
		if stop {
			t.Fatalf("attempt %d: unexpected stop", i+1)
		}
		if got != want {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, want, got)
		}
	}
}

func TestWithRetryReturnsOriginalError(t *testing.T) {
	cause := &provider.StatusError{Code: 503, Body: "down"}
	calls := 0

	err := withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		return cause
	})
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	var se *provider.StatusError
	if !errors.As(err, &se) || se != cause {
		t.Fatalf("expected the original error instance, got %v", err)
	}
}

func TestWithRetryStopsOnNonRetryable(t *testing.T) {
	cause := errors.New("boom")
	calls := 0

	err := withRetry(context.Background(), 5, time.Millisecond, func(context.Context) error {
		calls++
		return cause
	})
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause, got %v", err)
	}
}

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0

	err := withRetry(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls == 1 {
			return &provider.StatusError{Code: 429, Body: "slow down"}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", calls)
	}
}

func TestWithRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	err := withRetry(ctx, 5, time.Millisecond, func(context.Context) error {
		calls++
		cancel()
		return &provider.StatusError{Code: 503, Body: "down"}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt after cancellation, got %d", calls)
	}
}
