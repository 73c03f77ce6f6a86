package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned when the breaker short-circuits a call.
var ErrCircuitOpen = errors.New("host binding circuit breaker is open")

// CircuitState represents the current state of the circuit breaker
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen blocks calls until the cool-down elapses.
	CircuitOpen
	// CircuitHalfOpen lets probe calls through to test recovery.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker counts consecutive failures across validation passes.
// Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	successThreshold int
	coolDown         time.Duration
	now              func() time.Time

	state           CircuitState
	failures        int
	successCount    int
	lastFailureTime time.Time
}

// CircuitOption configures a CircuitBreaker.
type CircuitOption func(*CircuitBreaker)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CircuitOption {
	return func(cb *CircuitBreaker) {
		if now != nil {
			cb.now = now
		}
	}
}

// NewCircuitBreaker creates a breaker that opens after failureThreshold consecutive
// failures and closes again after successThreshold successful probes.
func NewCircuitBreaker(failureThreshold, successThreshold int, coolDown time.Duration, opts ...CircuitOption) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 3
	}
	if successThreshold <= 0 {
		successThreshold = 1
	}
	if coolDown <= 0 {
		coolDown = 30 * time.Second
	}

	cb := &CircuitBreaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		coolDown:         coolDown,
		now:              time.Now,
		state:            CircuitClosed,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Allow reports whether a call may go through, moving open to half-open once the cool-down elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) >= cb.coolDown {
			cb.state = CircuitHalfOpen
			cb.successCount = 0
			return true
		}
		return false
	default:
		return false
	}
}

// RecordSuccess resets the failure streak, closing a half-open circuit once enough probes passed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		cb.failures = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			cb.state = CircuitClosed
			cb.failures = 0
			cb.successCount = 0
		}
	}
}

// RecordFailure extends the failure streak and may open the circuit.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()

	switch cb.state {
	case CircuitClosed:
		cb.failures++
		if cb.failures >= cb.failureThreshold {
			cb.state = CircuitOpen
		}
	case CircuitHalfOpen:
		cb.state = CircuitOpen
		cb.failures = cb.failureThreshold
		cb.successCount = 0
	}
}

// State returns the state Allow would observe right now.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen && cb.now().Sub(cb.lastFailureTime) >= cb.coolDown {
		return CircuitHalfOpen
	}
	return cb.state
}

// Reset closes the circuit and clears counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.failures = 0
	cb.successCount = 0
	cb.lastFailureTime = time.Time{}
}

// CircuitStats is a snapshot for diagnostics.
type CircuitStats struct {
	State           string
	Failures        int
	SuccessCount    int
	LastFailureTime time.Time
}

func (cb *CircuitBreaker) Stats() CircuitStats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitStats{
		State:           cb.state.String(),
		Failures:        cb.failures,
		SuccessCount:    cb.successCount,
		LastFailureTime: cb.lastFailureTime,
	}
}
