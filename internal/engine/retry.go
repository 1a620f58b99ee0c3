package engine

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/hiveworks/hive/internal/port/provider"
	"github.com/hiveworks/hive/internal/resilience"
)

// Retryable reports whether a backend error is a transient failure worth
// retrying. Context cancellation is never retryable; it means the caller
// gave up.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return true
	}

	var se *provider.StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case 429, 502, 503, 504:
			return true
		default:
			return false
		}
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "rate limit")
}

// noRetryError pins an error as final even when Retryable would classify its
// cause as transient. Used when repeating the call would have visible side
// effects, such as replaying an already started stream.
type noRetryError struct{ cause error }

func noRetry(err error) error { return &noRetryError{cause: err} }

func (e *noRetryError) Error() string { return e.cause.Error() }
func (e *noRetryError) Unwrap() error { return e.cause }

// linearBackoff implements retry.Backoff with delay = base * attempt number,
// so attempt 1 waits base, attempt 2 waits 2*base, and so on.
type linearBackoff struct {
	base    time.Duration
	attempt uint64
}

func (b *linearBackoff) Next() (time.Duration, bool) {
	n := atomic.AddUint64(&b.attempt, 1)
	return b.base * time.Duration(n), false
}

// withRetry runs fn up to maxAttempts times, sleeping base*n between
// attempts. Only errors classified by Retryable are retried; the last
// backend error is returned unchanged.
func withRetry(ctx context.Context, maxAttempts int, base time.Duration, fn func(ctx context.Context) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	b := retry.WithMaxRetries(uint64(maxAttempts-1), &linearBackoff{base: base})

	var lastErr error
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			var nr *noRetryError
			if errors.As(err, &nr) {
				lastErr = nr.cause
				return err
			}
			lastErr = err
			if Retryable(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		lastErr = nil
		return nil
	})
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}
