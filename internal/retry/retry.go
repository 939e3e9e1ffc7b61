// Package retry runs an operation a bounded number of times with
// exponential backoff and jitter between attempts.
package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// Policy bounds the attempts made by Do.
type Policy struct {
	Attempts  int           // total attempts including the first; < 1 means 1
	BaseDelay time.Duration // delay before the second attempt
	MaxDelay  time.Duration // cap on any single delay
}

// DefaultPolicy makes three attempts, the bound the producers use.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second}
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Do calls fn until it succeeds, returns an error retryable rejects, the
// attempts run out, or ctx is done. A non-retryable error is returned as fn
// produced it. Exhaustion is wrapped in *ExhaustedError. A retry cut short
// by ctx returns ctx's error; the last attempt's error is kept as text only,
// so its kind does not leak out as if the budget had been spent.
func Do(ctx context.Context, p Policy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			timer := time.NewTimer(p.delay(attempt - 1))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return interrupted(ctx, last)
			}
		}
		last = fn(ctx)
		if last == nil {
			return nil
		}
		if retryable == nil || !retryable(last) {
			return last
		}
		if ctx.Err() != nil {
			return interrupted(ctx, last)
		}
	}
	return &ExhaustedError{Attempts: attempts, Last: last}
}

func interrupted(ctx context.Context, last error) error {
	return fmt.Errorf("%w (last attempt: %v)", ctx.Err(), last)
}

// delay returns the backoff before retry number n (1-based), with up to
// 25% jitter.
func (p Policy) delay(n int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := float64(p.BaseDelay) * math.Pow(2, float64(n-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	jitter := d * 0.25 * rand.Float64()
	return time.Duration(d + jitter)
}
