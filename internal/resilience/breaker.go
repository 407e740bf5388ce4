package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/enrich/internal/clock"
)

// State is the circuit breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// BreakerConfig tunes the count-based sliding window breaker.
type BreakerConfig struct {
	// WindowSize is the number of most recent call outcomes evaluated.
	WindowSize int
	// MinimumCalls gates evaluation until enough outcomes are observed.
	MinimumCalls int
	// FailureRateThreshold in (0, 1]; reaching it opens the circuit.
	FailureRateThreshold float64
	// OpenFor is how long the breaker rejects calls before probing.
	OpenFor time.Duration
	// HalfOpenProbes is how many probe calls HALF_OPEN admits.
	HalfOpenProbes int
}

// CircuitBreaker is a count-based sliding window breaker shared by every
// call to one provider endpoint. It is long-lived process state: construct
// it once and inject it, never recreate it per call.
type CircuitBreaker struct {
	cfg   BreakerConfig
	clock clock.Clock

	mu            sync.Mutex
	state         State
	window        []bool // true = failure
	openedAt      time.Time
	probesStarted int
	probesDone    int
	probeFailures int

	onStateChange func(from, to State)
}

func NewCircuitBreaker(cfg BreakerConfig, clk clock.Clock) *CircuitBreaker {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 10
	}
	if cfg.MinimumCalls <= 0 {
		cfg.MinimumCalls = cfg.WindowSize / 2
	}
	if cfg.FailureRateThreshold <= 0 {
		cfg.FailureRateThreshold = 0.5
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if clk == nil {
		clk = clock.NewSystemClock()
	}
	return &CircuitBreaker{
		cfg:   cfg,
		clock: clk,
		state: StateClosed,
	}
}

// OnStateChange registers a transition hook, called outside the lock.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onStateChange = fn
}

// State reports the current state, honoring open-window expiry.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	hook := cb.refreshLocked()
	state := cb.state
	cb.mu.Unlock()

	if hook != nil {
		hook()
	}
	return state
}

// Execute runs fn if the breaker admits the call and records its outcome.
// countAsFailure decides whether an error counts against the failure rate;
// errors that do not count are recorded as successful outcomes.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error, countAsFailure func(error) bool) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn(ctx)
	failure := err != nil && (countAsFailure == nil || countAsFailure(err))
	cb.record(failure)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	hook := cb.refreshLocked()

	var err error
	switch cb.state {
	case StateOpen:
		err = ErrCircuitOpen
	case StateHalfOpen:
		if cb.probesStarted >= cb.cfg.HalfOpenProbes {
			err = ErrCircuitOpen
		} else {
			cb.probesStarted++
		}
	}
	cb.mu.Unlock()

	if hook != nil {
		hook()
	}
	return err
}

func (cb *CircuitBreaker) record(failure bool) {
	var transition func()

	cb.mu.Lock()
	switch cb.state {
	case StateHalfOpen:
		cb.probesDone++
		if failure {
			cb.probeFailures++
		}
		if cb.probesDone >= cb.cfg.HalfOpenProbes {
			rate := float64(cb.probeFailures) / float64(cb.probesDone)
			if rate >= cb.cfg.FailureRateThreshold {
				transition = cb.transitionLocked(StateOpen)
			} else {
				transition = cb.transitionLocked(StateClosed)
			}
		}
	case StateClosed:
		cb.window = append(cb.window, failure)
		if len(cb.window) > cb.cfg.WindowSize {
			cb.window = cb.window[len(cb.window)-cb.cfg.WindowSize:]
		}
		if len(cb.window) >= cb.cfg.MinimumCalls && cb.failureRateLocked() >= cb.cfg.FailureRateThreshold {
			transition = cb.transitionLocked(StateOpen)
		}
	}
	cb.mu.Unlock()

	if transition != nil {
		transition()
	}
}

// refreshLocked moves OPEN to HALF_OPEN once the open window elapses and
// returns the state-change hook to invoke after the lock is released.
func (cb *CircuitBreaker) refreshLocked() func() {
	if cb.state == StateOpen && cb.clock.Now().Sub(cb.openedAt) >= cb.cfg.OpenFor {
		return cb.transitionLocked(StateHalfOpen)
	}
	return nil
}

func (cb *CircuitBreaker) failureRateLocked() float64 {
	if len(cb.window) == 0 {
		return 0
	}
	failures := 0
	for _, failed := range cb.window {
		if failed {
			failures++
		}
	}
	return float64(failures) / float64(len(cb.window))
}

// transitionLocked switches state and returns the hook invocation to run
// once the lock is released.
func (cb *CircuitBreaker) transitionLocked(to State) func() {
	from := cb.state
	if from == to {
		return nil
	}
	cb.state = to

	switch to {
	case StateOpen:
		cb.openedAt = cb.clock.Now()
		cb.window = nil
	case StateHalfOpen:
		cb.probesStarted = 0
		cb.probesDone = 0
		cb.probeFailures = 0
	case StateClosed:
		cb.window = nil
	}

	hook := cb.onStateChange
	if hook == nil {
		return nil
	}
	return func() { hook(from, to) }
}
