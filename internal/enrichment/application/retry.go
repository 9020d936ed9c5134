package application

import (
	"context"
	"time"

	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
)

// RetryPolicy bounds how often and how slowly a provider call is repeated.
type RetryPolicy struct {
	// MaxAttempts is the number of calls made before giving up.
	MaxAttempts int

	// BaseDelay is the wait after the first failure. Each further failure
	// doubles it.
	BaseDelay time.Duration

	// AttemptTimeout bounds each call. Zero leaves calls unbounded.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy returns three attempts with a 500ms base delay and a
// 10s per-call timeout.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      500 * time.Millisecond,
		AttemptTimeout: 10 * time.Second,
	}
}

// Delay returns the wait following the zero-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return p.BaseDelay << attempt
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Retrier runs a call under a RetryPolicy.
type Retrier struct {
	policy RetryPolicy
	sleep  SleepFunc
}

// NewRetrier creates a retrier. A policy with fewer than one attempt is
// treated as a single attempt.
func NewRetrier(policy RetryPolicy) *Retrier {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	return &Retrier{policy: policy, sleep: sleepContext}
}

// WithSleep replaces the wait between attempts.
func (r *Retrier) WithSleep(sleep SleepFunc) *Retrier {
	if sleep != nil {
		r.sleep = sleep
	}
	return r
}

// Policy returns the retrier's policy.
func (r *Retrier) Policy() RetryPolicy {
	return r.policy
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// attempts run out. It returns the number of calls made. Cancellation of
// ctx stops retrying and is returned as-is.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) (int, error) {
	var err error
	made := 0
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return made, ctxErr
		}

		made++
		if err = r.call(ctx, attempt, fn); err == nil {
			return made, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return made, ctxErr
		}
		if !domain.IsRetryable(err) || made == r.policy.MaxAttempts {
			break
		}
		if sleepErr := r.sleep(ctx, r.policy.Delay(attempt)); sleepErr != nil {
			return made, sleepErr
		}
	}
	return made, err
}

func (r *Retrier) call(ctx context.Context, attempt int, fn func(ctx context.Context, attempt int) error) error {
	if r.policy.AttemptTimeout <= 0 {
		return fn(ctx, attempt+1)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.policy.AttemptTimeout)
	defer cancel()
	return fn(attemptCtx, attempt+1)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
