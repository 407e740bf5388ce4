package resilience

import (
	"context"
	"time"
)

// RetryConfig bounds the attempt budget and backoff schedule.
type RetryConfig struct {
	// MaxAttempts is the total attempt budget including the first call.
	MaxAttempts int
	// InitialBackoff is the wait before the first retry; it doubles on
	// each subsequent retry.
	InitialBackoff time.Duration
}

// Retry re-runs a call on transient failures with doubling backoff. Which
// failures qualify is decided by the classifier supplied at construction.
type Retry struct {
	cfg       RetryConfig
	retryable func(error) bool
	onRetry   func(attempt int, err error)
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewRetry(cfg RetryConfig, retryable func(error) bool, onRetry func(attempt int, err error)) *Retry {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Retry{
		cfg:       cfg,
		retryable: retryable,
		onRetry:   onRetry,
		sleep:     sleepContext,
	}
}

// WithSleep overrides the backoff sleeper. Intended for tests.
func (r *Retry) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Retry {
	r.sleep = fn
	return r
}

// Do runs fn until it succeeds, fails non-transiently, or the attempt
// budget is spent. The last error is returned unchanged.
func (r *Retry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	backoff := r.cfg.InitialBackoff

	var err error
	for attempt := 1; ; attempt++ {
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if attempt >= r.cfg.MaxAttempts || r.retryable == nil || !r.retryable(err) {
			return err
		}

		if r.onRetry != nil {
			r.onRetry(attempt, err)
		}
		if sleepErr := r.sleep(ctx, backoff); sleepErr != nil {
			return err
		}
		backoff *= 2
	}
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
