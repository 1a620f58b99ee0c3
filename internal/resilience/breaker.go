// Package resilience provides reliability patterns for backend provider
// calls.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the circuit breaker is rejecting calls.
// The exchange subsystem classifies it as a retryable transient.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

func (s state) String() string {
	switch s {
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Breaker guards calls to one backend. Consecutive failures open the
// circuit; once the cooldown elapses a single trial call is admitted at a
// time, and the circuit closes again only after recoveryHits trials in a row
// succeed. A failed trial reopens it immediately.
type Breaker struct {
	name         string
	maxFailures  int
	recoveryHits int
	cooldown     time.Duration

	mu        sync.Mutex
	state     state
	failures  int
	successes int
	trialing  bool
	openedAt  time.Time

	now func() time.Time // for testing
}

// NewBreaker creates a breaker. name labels its log lines; maxFailures and
// recoveryHits are clamped to at least 1.
func NewBreaker(name string, maxFailures, recoveryHits int, cooldown time.Duration) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if recoveryHits < 1 {
		recoveryHits = 1
	}
	return &Breaker{
		name:         name,
		maxFailures:  maxFailures,
		recoveryHits: recoveryHits,
		cooldown:     cooldown,
		now:          time.Now,
	}
}

// Execute runs fn unless the circuit is open or a half-open trial call is
// already in flight, in which case it returns ErrCircuitOpen.
func (b *Breaker) Execute(fn func() error) error {
	if !b.admit() {
		return ErrCircuitOpen
	}
	err := fn()
	b.settle(err)
	return err
}

func (b *Breaker) admit() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.transition(stateHalfOpen)
		b.trialing = true
		return true
	case stateHalfOpen:
		// One trial call in flight at a time.
		if b.trialing {
			return false
		}
		b.trialing = true
		return true
	default:
		return true
	}
}

func (b *Breaker) settle(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialing = false

	if err != nil {
		if b.state == stateHalfOpen {
			b.transition(stateOpen)
			b.openedAt = b.now()
			return
		}
		b.failures++
		if b.state == stateClosed && b.failures >= b.maxFailures {
			b.transition(stateOpen)
			b.openedAt = b.now()
		}
		return
	}

	if b.state == stateHalfOpen {
		b.successes++
		if b.successes >= b.recoveryHits {
			b.transition(stateClosed)
		}
		return
	}
	b.failures = 0
}

// transition must be called with b.mu held.
func (b *Breaker) transition(s state) {
	if b.state == s {
		return
	}
	slog.Info("breaker state change",
		"breaker", b.name, "from", b.state.String(), "to", s.String())
	b.state = s
	b.failures = 0
	b.successes = 0
}
