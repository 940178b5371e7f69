package resilience

import (
	"errors"
	"sync"
	"time"
)

// BreakerState represents the circuit breaker state
type BreakerState int

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned by Call without invoking the wrapped function
// while the breaker is open and inside its recovery window.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Breaker is a per-probe circuit breaker. Closed until the failure tally
// reaches the threshold, then open for the recovery timeout, then half-open:
// the next call closes it on success or re-opens it on failure.
type Breaker struct {
	mu              sync.Mutex
	state           BreakerState
	failures        int
	threshold       int
	recoveryTimeout time.Duration
	openedAt        time.Time

	// now is replaceable for deterministic tests
	now func() time.Time
}

// NewBreaker creates a closed breaker with the given failure threshold and
// recovery timeout.
func NewBreaker(threshold int, recoveryTimeout time.Duration) *Breaker {
	return &Breaker{
		state:           StateClosed,
		threshold:       threshold,
		recoveryTimeout: recoveryTimeout,
		now:             time.Now,
	}
}

// Call executes fn unless the breaker is open and still inside the recovery
// window, in which case it returns ErrCircuitOpen immediately. The outcome
// of fn drives the state machine.
func (b *Breaker) Call(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := fn()
	b.record(err == nil)
	return err
}

// allow reports whether a call may proceed, transitioning open breakers to
// half-open once the recovery timeout has elapsed.
func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) >= b.recoveryTimeout {
			b.state = StateHalfOpen
			return true
		}
		return false
	}
	return true
}

// record feeds a call outcome into the state machine
func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if success {
		b.state = StateClosed
		b.failures = 0
		return
	}

	switch b.state {
	case StateHalfOpen:
		// The probe call failed: re-open and restart the recovery clock.
		b.state = StateOpen
		b.openedAt = b.now()
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
}

// State returns the current state without mutating it. An open breaker whose
// recovery timeout has elapsed reports half-open; the transition itself is
// committed by the next call. Safe for concurrent readers.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.recoveryTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Failures returns the internal failure tally
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}
