// Package resilience wraps calls into the host binding with retries, a circuit breaker
// and a cancellable debouncer.
package resilience

import (
	"math"
	"math/rand/v2"
	"time"
)

// Backoff computes the delay before a retry. Attempt starts at 1 for the first retry.
type Backoff interface {
	NextInterval(attempt int) time.Duration
}

// ExponentialBackoff grows the delay by Multiplier per attempt, capped at MaxInterval.
type ExponentialBackoff struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	JitterFactor    float64
}

// NextInterval returns min(Initial * Multiplier^(attempt-1) * (1 ± Jitter), Max).
func (e ExponentialBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	initial := e.InitialInterval
	if initial == 0 {
		initial = 100 * time.Millisecond
	}

	maxInterval := e.MaxInterval
	if maxInterval == 0 {
		maxInterval = 5 * time.Second
	}

	multiplier := e.Multiplier
	if multiplier == 0 {
		multiplier = 2
	}

	interval := float64(initial) * math.Pow(multiplier, float64(attempt-1))

	if e.JitterFactor > 0 {
		interval *= 1 + (rand.Float64()*2-1)*e.JitterFactor
	}

	if interval > float64(maxInterval) {
		interval = float64(maxInterval)
	}

	return time.Duration(interval)
}

// FixedBackoff waits the same interval before every retry.
type FixedBackoff struct {
	Interval time.Duration
}

func (f FixedBackoff) NextInterval(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	return f.Interval
}

// DefaultBackoff suits host API calls made while the user is typing:
// short first delay, capped well below a second.
func DefaultBackoff() Backoff {
	return ExponentialBackoff{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     800 * time.Millisecond,
		Multiplier:      2,
		JitterFactor:    0.1,
	}
}
