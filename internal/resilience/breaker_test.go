package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/enrich/internal/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errServer = errors.New("server error")

func newTestBreaker(clk clock.Clock) *CircuitBreaker {
	return NewCircuitBreaker(BreakerConfig{
		WindowSize:           10,
		MinimumCalls:         5,
		FailureRateThreshold: 0.5,
		OpenFor:              10 * time.Second,
		HalfOpenProbes:       3,
	}, clk)
}

func run(cb *CircuitBreaker, err error) error {
	return cb.Execute(context.Background(), func(ctx context.Context) error {
		return err
	}, func(error) bool { return true })
}

func TestBreakerStaysClosedBelowMinimumCalls(t *testing.T) {
	cb := newTestBreaker(clock.NewFakeClock(time.Now()))

	for i := 0; i < 4; i++ {
		_ = run(cb, errServer)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerOpensAtFailureThreshold(t *testing.T) {
	cb := newTestBreaker(clock.NewFakeClock(time.Now()))

	for i := 0; i < 3; i++ {
		_ = run(cb, nil)
	}
	for i := 0; i < 3; i++ {
		_ = run(cb, errServer)
	}

	// 3 failures over 6 calls: 50% with >= 5 observed
	assert.Equal(t, StateOpen, cb.State())
}

func TestOpenBreakerFailsFastWithoutCalling(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	cb := newTestBreaker(clk)

	for i := 0; i < 5; i++ {
		_ = run(cb, errServer)
	}
	require.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(context.Background(), func(ctx context.Context) error {
		called = true
		return nil
	}, func(error) bool { return true })

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerHalfOpensAfterWaitAndAllowsThreeProbes(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	cb := newTestBreaker(clk)

	for i := 0; i < 5; i++ {
		_ = run(cb, errServer)
	}
	require.Equal(t, StateOpen, cb.State())

	clk.Advance(10 * time.Second)
	assert.Equal(t, StateHalfOpen, cb.State())

	// exactly 3 probes admitted; outcomes held open until all complete
	admitted := 0
	var done []func(bool)
	for i := 0; i < 5; i++ {
		err := cb.allow()
		if err == nil {
			admitted++
			done = append(done, func(failure bool) { cb.record(failure) })
		} else {
			assert.ErrorIs(t, err, ErrCircuitOpen)
		}
	}
	assert.Equal(t, 3, admitted)

	for _, record := range done {
		record(false)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerReopensWhenProbesFail(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	cb := newTestBreaker(clk)

	for i := 0; i < 5; i++ {
		_ = run(cb, errServer)
	}
	clk.Advance(10 * time.Second)
	require.Equal(t, StateHalfOpen, cb.State())

	for i := 0; i < 3; i++ {
		_ = run(cb, errServer)
	}
	assert.Equal(t, StateOpen, cb.State())
}

func TestBreakerIgnoresNonCountedFailures(t *testing.T) {
	cb := newTestBreaker(clock.NewFakeClock(time.Now()))

	clientErr := errors.New("client error")
	for i := 0; i < 10; i++ {
		_ = cb.Execute(context.Background(), func(ctx context.Context) error {
			return clientErr
		}, func(error) bool { return false })
	}

	assert.Equal(t, StateClosed, cb.State())
}

func TestBreakerNotifiesStateChanges(t *testing.T) {
	clk := clock.NewFakeClock(time.Now())
	cb := newTestBreaker(clk)

	var transitions []string
	cb.OnStateChange(func(from, to State) {
		transitions = append(transitions, string(from)+"->"+string(to))
	})

	for i := 0; i < 5; i++ {
		_ = run(cb, errServer)
	}
	clk.Advance(10 * time.Second)
	_ = cb.State()
	for i := 0; i < 3; i++ {
		_ = run(cb, nil)
	}

	assert.Equal(t, []string{"CLOSED->OPEN", "OPEN->HALF_OPEN", "HALF_OPEN->CLOSED"}, transitions)
}
