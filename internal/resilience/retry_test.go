package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var (
	errTransient = errors.New("transient")
	errPermanent = errors.New("permanent")
)

func newTestRetry(maxAttempts int, sleeps *[]time.Duration) *Retry {
	r := NewRetry(
		RetryConfig{MaxAttempts: maxAttempts, InitialBackoff: time.Second},
		func(err error) bool { return errors.Is(err, errTransient) },
		nil,
	)
	r.sleep = func(ctx context.Context, d time.Duration) error {
		if sleeps != nil {
			*sleeps = append(*sleeps, d)
		}
		return nil
	}
	return r
}

func TestRetryExhaustsAttemptBudget(t *testing.T) {
	var sleeps []time.Duration
	r := newTestRetry(3, &sleeps)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
}

func TestRetrySucceedsOnThirdAttempt(t *testing.T) {
	r := newTestRetry(3, nil)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryDoesNotRetryPermanentFailures(t *testing.T) {
	r := newTestRetry(3, nil)

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errPermanent
	})

	assert.ErrorIs(t, err, errPermanent)
	assert.Equal(t, 1, calls)
}

func TestRetryReportsEachRetry(t *testing.T) {
	attempts := []int{}
	r := NewRetry(
		RetryConfig{MaxAttempts: 3, InitialBackoff: time.Second},
		func(err error) bool { return true },
		func(attempt int, err error) { attempts = append(attempts, attempt) },
	)
	r.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	_ = r.Do(context.Background(), func(ctx context.Context) error { return errTransient })

	assert.Equal(t, []int{1, 2}, attempts)
}

func TestRetryStopsWhenContextCancelledDuringBackoff(t *testing.T) {
	r := NewRetry(
		RetryConfig{MaxAttempts: 3, InitialBackoff: time.Second},
		func(err error) bool { return true },
		nil,
	)
	r.sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }

	calls := 0
	err := r.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errTransient
	})

	assert.ErrorIs(t, err, errTransient)
	assert.Equal(t, 1, calls)
}
