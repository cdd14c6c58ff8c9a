package execute

import (
	"context"
	"math"
	"time"

	"github.com/sitesync/sitesync/pkg/provider"
)

// RetryPolicy controls retries of rate-limited and transient provider
// failures. The zero value retries nothing; use DefaultRetryPolicy.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first.
	MaxAttempts int

	// BaseDelay is the backoff base for transient failures.
	BaseDelay time.Duration

	// RateLimitedDelay is the backoff base when the provider throttled
	// the call. Throttling needs longer pauses than flaky networking.
	RateLimitedDelay time.Duration

	// MaxDelay caps a single backoff pause.
	MaxDelay time.Duration
}

// DefaultRetryPolicy returns the standard policy: four attempts with
// exponential backoff, longer pauses after throttling.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:      4,
		BaseDelay:        1 * time.Second,
		RateLimitedDelay: 5 * time.Second,
		MaxDelay:         time.Minute,
	}
}

// Backoff returns the pause before the next attempt. attempt counts
// from 0 for the first failure.
func (p RetryPolicy) Backoff(attempt int, err error) time.Duration {
	base := p.BaseDelay
	if provider.IsRateLimited(err) {
		base = p.RateLimitedDelay
	}

	delay := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	// Stagger concurrent retries by an eighth of the delay.
	return delay + delay/8
}

// Do runs fn until it succeeds, fails terminally, exhausts attempts or
// the context ends. It returns the attempt count and the final error.
// onRetry, if set, runs before each backoff pause.
func (p RetryPolicy) Do(ctx context.Context, fn func(context.Context) error, onRetry func(attempt int, err error)) (int, error) {
	attempts := 0
	for {
		err := fn(ctx)
		attempts++
		if err == nil {
			return attempts, nil
		}
		if !provider.IsRetryable(err) || attempts >= p.MaxAttempts {
			return attempts, err
		}

		if onRetry != nil {
			onRetry(attempts, err)
		}
		timer := time.NewTimer(p.Backoff(attempts-1, err))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return attempts, ctx.Err()
		}
	}
}
