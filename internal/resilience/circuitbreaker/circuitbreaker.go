// Package circuitbreaker provides circuit breaker implementations for provider calls.
// It uses the github.com/sony/gobreaker library for the state machine and keeps a
// count-based sliding window of call outcomes to decide when to trip.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// State is the externally visible breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Config holds the configuration for a circuit breaker.
type Config struct {
	// Name is the circuit breaker name for logging and metrics
	Name string

	// SlidingWindowSize is the number of most recent calls whose outcomes are tracked
	SlidingWindowSize int

	// MinimumNumberOfCalls is the number of recorded calls required before rates are evaluated
	MinimumNumberOfCalls int

	// FailureRateThreshold trips the breaker when this percentage of window calls failed
	FailureRateThreshold float64

	// SlowCallRateThreshold trips the breaker when this percentage of window calls were slow
	SlowCallRateThreshold float64

	// SlowCallDurationThreshold is the duration above which a call counts as slow
	SlowCallDurationThreshold time.Duration

	// WaitDurationInOpenState is how long to wait in open state before probing again
	WaitDurationInOpenState time.Duration

	// PermittedNumberOfCallsInHalfOpenState is the number of trial calls allowed when half-open
	PermittedNumberOfCallsInHalfOpenState uint32

	// AutomaticTransition makes State report HALF_OPEN as soon as the wait elapses.
	// When false the breaker stays OPEN until a call arrives after the wait.
	AutomaticTransition bool

	// IsFailure decides whether an error returned by the guarded call counts against
	// the breaker. Nil means every error except context.Canceled counts.
	// A canceled call that is not a failure is left out of the window and never
	// counts as a successful HALF_OPEN trial.
	IsFailure func(err error) bool

	// OnStateChange is invoked on every transition. It runs while the breaker is
	// locked and must not block or call back into the breaker.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig returns a default configuration for circuit breakers.
func DefaultConfig(name string) Config {
	return Config{
		Name:                                  name,
		SlidingWindowSize:                     10,
		MinimumNumberOfCalls:                  5,
		FailureRateThreshold:                  50,
		SlowCallRateThreshold:                 100,
		SlowCallDurationThreshold:             5 * time.Second,
		WaitDurationInOpenState:               30 * time.Second,
		PermittedNumberOfCallsInHalfOpenState: 3,
		AutomaticTransition:                   true,
	}
}

// Validate reports configuration values that would make the breaker misbehave.
func (c Config) Validate() error {
	switch {
	case c.SlidingWindowSize <= 0:
		return fmt.Errorf("sliding window size must be positive, got %d", c.SlidingWindowSize)
	case c.MinimumNumberOfCalls <= 0:
		return fmt.Errorf("minimum number of calls must be positive, got %d", c.MinimumNumberOfCalls)
	case c.FailureRateThreshold <= 0 || c.FailureRateThreshold > 100:
		return fmt.Errorf("failure rate threshold must be in (0, 100], got %v", c.FailureRateThreshold)
	case c.SlowCallRateThreshold <= 0 || c.SlowCallRateThreshold > 100:
		return fmt.Errorf("slow call rate threshold must be in (0, 100], got %v", c.SlowCallRateThreshold)
	case c.WaitDurationInOpenState <= 0:
		return fmt.Errorf("wait duration in open state must be positive, got %v", c.WaitDurationInOpenState)
	case c.PermittedNumberOfCallsInHalfOpenState == 0:
		return errors.New("permitted number of calls in half-open state must be positive")
	}
	return nil
}

// errTrip makes gobreaker evaluate ReadyToTrip after a call it would otherwise count as a success.
var errTrip = errors.New("circuit breaker window over threshold")

// CircuitBreaker wraps gobreaker.CircuitBreaker with failure-rate and slow-call-rate tracking.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
	window  *window
	cfg     Config
	now     func() time.Time

	mu        sync.Mutex
	lastState State
}

// New creates a new circuit breaker with the given configuration.
// Zero-valued numeric fields fall back to DefaultConfig.
func New(cfg Config) *CircuitBreaker {
	cfg = withDefaults(cfg)

	cb := &CircuitBreaker{
		window:    newWindow(cfg.SlidingWindowSize),
		cfg:       cfg,
		now:       time.Now,
		lastState: StateClosed,
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.PermittedNumberOfCallsInHalfOpenState,
		// Interval 0 keeps gobreaker from clearing counts; the window owns outcome history.
		Interval: 0,
		Timeout:  cfg.WaitDurationInOpenState,
		ReadyToTrip: func(_ gobreaker.Counts) bool {
			return cb.overThreshold()
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			cb.onStateChange(name, fromGobreaker(from), fromGobreaker(to))
		},
	}
	cb.breaker = gobreaker.NewCircuitBreaker(settings)
	breakerState.WithLabelValues(cfg.Name).Set(stateValue(StateClosed))
	return cb
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig(cfg.Name)
	if cfg.SlidingWindowSize <= 0 {
		cfg.SlidingWindowSize = def.SlidingWindowSize
	}
	if cfg.MinimumNumberOfCalls <= 0 {
		cfg.MinimumNumberOfCalls = def.MinimumNumberOfCalls
	}
	if cfg.FailureRateThreshold <= 0 {
		cfg.FailureRateThreshold = def.FailureRateThreshold
	}
	if cfg.SlowCallRateThreshold <= 0 {
		cfg.SlowCallRateThreshold = def.SlowCallRateThreshold
	}
	if cfg.SlowCallDurationThreshold <= 0 {
		cfg.SlowCallDurationThreshold = def.SlowCallDurationThreshold
	}
	if cfg.WaitDurationInOpenState <= 0 {
		cfg.WaitDurationInOpenState = def.WaitDurationInOpenState
	}
	if cfg.PermittedNumberOfCallsInHalfOpenState == 0 {
		cfg.PermittedNumberOfCallsInHalfOpenState = def.PermittedNumberOfCallsInHalfOpenState
	}
	return cfg
}

func (cb *CircuitBreaker) isFailure(err error) bool {
	if err == nil {
		return false
	}
	if cb.cfg.IsFailure != nil {
		return cb.cfg.IsFailure(err)
	}
	return !errors.Is(err, context.Canceled)
}

func (cb *CircuitBreaker) overThreshold() bool {
	snap := cb.window.snapshot()
	if snap.Calls < cb.cfg.MinimumNumberOfCalls {
		return false
	}
	return snap.FailureRate >= cb.cfg.FailureRateThreshold ||
		snap.SlowCallRate >= cb.cfg.SlowCallRateThreshold
}

// onStateChange runs under the gobreaker lock.
func (cb *CircuitBreaker) onStateChange(name string, from, to State) {
	cb.window.reset()

	cb.mu.Lock()
	cb.lastState = to
	cb.mu.Unlock()

	breakerState.WithLabelValues(name).Set(stateValue(to))
	breakerTransitions.WithLabelValues(name, string(from), string(to)).Inc()

	slog.Warn("circuit breaker state changed",
		slog.String("circuit", name),
		slog.String("from", string(from)),
		slog.String("to", string(to)))

	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(name, from, to)
	}
}

// Execute runs fn through the circuit breaker.
// While the breaker is open it returns an error matching ErrOpen without calling fn.
// Otherwise it returns exactly what fn returned.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		ran     bool
		callErr error
	)
	_, err := cb.breaker.Execute(func() (interface{}, error) {
		ran = true
		gen := cb.window.generation()
		start := cb.now()
		callErr = fn(ctx)
		elapsed := cb.now().Sub(start)

		failed := cb.isFailure(callErr)
		if !failed && errors.Is(callErr, context.Canceled) {
			// Abandoned calls say nothing about the target. They stay out of the
			// window, and gobreaker sees the error so a HALF_OPEN trial cannot pass.
			breakerCalls.WithLabelValues(cb.cfg.Name, "canceled").Inc()
			return nil, callErr
		}

		slow := elapsed > cb.cfg.SlowCallDurationThreshold
		cb.window.record(gen, failed, slow)
		recordCall(cb.cfg.Name, failed, slow)

		if failed {
			return nil, callErr
		}
		if cb.overThreshold() {
			return nil, errTrip
		}
		return nil, nil
	})

	if !ran {
		switch {
		case errors.Is(err, gobreaker.ErrOpenState):
			breakerCalls.WithLabelValues(cb.cfg.Name, "rejected").Inc()
			return fmt.Errorf("%w: %s", ErrOpen, cb.cfg.Name)
		case errors.Is(err, gobreaker.ErrTooManyRequests):
			breakerCalls.WithLabelValues(cb.cfg.Name, "rejected").Inc()
			return fmt.Errorf("%w: %s", ErrTooManyRequests, cb.cfg.Name)
		}
		return err
	}
	return callErr
}

// State returns the current state of the circuit breaker.
func (cb *CircuitBreaker) State() State {
	if cb.cfg.AutomaticTransition {
		// gobreaker moves OPEN to HALF_OPEN lazily when its state is read after the timeout.
		return fromGobreaker(cb.breaker.State())
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.lastState
}

// Name returns the name of the circuit breaker.
func (cb *CircuitBreaker) Name() string {
	return cb.cfg.Name
}

// IsOpen returns true if the circuit breaker is in the open state.
func (cb *CircuitBreaker) IsOpen() bool {
	return cb.State() == StateOpen
}

// Metrics is a point-in-time view of the breaker.
type Metrics struct {
	State         State   `json:"state"`
	FailureRate   float64 `json:"failureRate"`
	SlowCallRate  float64 `json:"slowCallRate"`
	BufferedCalls int     `json:"bufferedCalls"`
	FailedCalls   int     `json:"failedCalls"`
	SlowCalls     int     `json:"slowCalls"`
}

// Metrics returns the current state and window rates.
func (cb *CircuitBreaker) Metrics() Metrics {
	state := cb.State()
	snap := cb.window.snapshot()
	return Metrics{
		State:         state,
		FailureRate:   snap.FailureRate,
		SlowCallRate:  snap.SlowCallRate,
		BufferedCalls: snap.Calls,
		FailedCalls:   snap.Failures,
		SlowCalls:     snap.Slow,
	}
}
