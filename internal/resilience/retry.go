package resilience

import (
	"context"
	"time"

	"github.com/hal9000y/greetguard/internal/fault"
)

// Policy bounds retries around a single host call.
type Policy struct {
	// MaxAttempts counts the first call; values below 1 mean 1.
	MaxAttempts int
	Backoff     Backoff
}

// DefaultPolicy tries three times with DefaultBackoff.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Backoff: DefaultBackoff()}
}

// Decision is the outcome of Decide.
type Decision struct {
	Retry bool
	Delay time.Duration
}

// Decide picks the recovery for a failure of the given kind after attempt calls (1-based).
// It holds no state: callers thread the attempt count.
func Decide(kind fault.Kind, attempt int, p Policy) Decision {
	maxAttempts := max(p.MaxAttempts, 1)
	if !fault.Retryable(kind) || attempt >= maxAttempts {
		return Decision{}
	}

	backoff := p.Backoff
	if backoff == nil {
		backoff = DefaultBackoff()
	}

	delay := backoff.NextInterval(attempt)
	if kind == fault.KindQuota {
		// quota errors need longer pauses than a blip on the wire
		delay *= 2
	}

	return Decision{Retry: true, Delay: delay}
}

// Retry calls fn until it succeeds, Decide says stop, or ctx is done.
// The returned error is the last failure, or ctx.Err() when cancelled during a backoff wait.
func Retry[T any](ctx context.Context, p Policy, fn func(context.Context) (T, error)) (T, int, error) {
	var zero T
	for attempt := 1; ; attempt++ {
		res, err := fn(ctx)
		if err == nil {
			return res, attempt, nil
		}

		d := Decide(fault.KindOf(err), attempt, p)
		if !d.Retry {
			return zero, attempt, err
		}

		if err := sleep(ctx, d.Delay); err != nil {
			return zero, attempt, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
