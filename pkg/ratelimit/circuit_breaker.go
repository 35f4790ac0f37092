package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// ErrStoreCircuitOpen is returned without reaching the store while its breaker is open.
// Callers treat it like any store error and admit the request.
var ErrStoreCircuitOpen = errors.New("rate limit store circuit open")

// CircuitBreakerConfig holds configuration for CircuitBreakerStore.
type CircuitBreakerConfig struct {
	// Name labels logs and the circuit state metric. Default: "store"
	Name string

	// FailureThreshold is the number of consecutive store failures that open the circuit.
	// Default: 10
	FailureThreshold int

	// RecoveryTimeout is how long the circuit stays open before one trial call.
	// Default: 30 seconds
	RecoveryTimeout time.Duration

	// Metrics receives state changes. Default: NoOpMetrics
	Metrics RateLimitMetrics
}

// CircuitBreakerStore guards an AtomicRateLimitStore.
//
// After FailureThreshold consecutive errors every call fails fast with
// ErrStoreCircuitOpen, so an unreachable Redis costs each request nothing
// instead of a network timeout per check. After RecoveryTimeout a single
// trial call decides whether the circuit closes again.
type CircuitBreakerStore struct {
	store   AtomicRateLimitStore
	cb      *gobreaker.CircuitBreaker
	name    string
	metrics RateLimitMetrics
}

// NewCircuitBreakerStore wraps store with a consecutive-failure breaker.
func NewCircuitBreakerStore(store AtomicRateLimitStore, config CircuitBreakerConfig) *CircuitBreakerStore {
	if config.Name == "" {
		config.Name = "store"
	}
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 10
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.Metrics == nil {
		config.Metrics = NewNoOpMetrics()
	}

	s := &CircuitBreakerStore{store: store, name: config.Name, metrics: config.Metrics}
	threshold := uint32(config.FailureThreshold)
	s.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: 1,
		Timeout:     config.RecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// A caller giving up says nothing about the store.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			s.metrics.RecordCircuitState(name, to.String())
			slog.Warn("rate limit store circuit changed",
				slog.String("store", name),
				slog.String("previous_state", from.String()),
				slog.String("new_state", to.String()),
				slog.Duration("recovery_timeout", config.RecoveryTimeout))
		},
	})
	s.metrics.RecordCircuitState(config.Name, gobreaker.StateClosed.String())
	return s
}

// State returns the circuit state: "closed", "half-open" or "open".
func (s *CircuitBreakerStore) State() string {
	return s.cb.State().String()
}

func (s *CircuitBreakerStore) do(fn func() error) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %s", ErrStoreCircuitOpen, s.name)
	}
	return err
}

// AddRequest records a request timestamp unless the circuit is open.
func (s *CircuitBreakerStore) AddRequest(ctx context.Context, key string, timestamp time.Time) error {
	return s.do(func() error { return s.store.AddRequest(ctx, key, timestamp) })
}

// GetRequestCount counts requests after cutoff unless the circuit is open.
func (s *CircuitBreakerStore) GetRequestCount(ctx context.Context, key string, cutoff time.Time) (int, error) {
	var count int
	err := s.do(func() error {
		var err error
		count, err = s.store.GetRequestCount(ctx, key, cutoff)
		return err
	})
	return count, err
}

// Reset clears key unless the circuit is open.
func (s *CircuitBreakerStore) Reset(ctx context.Context, key string) error {
	return s.do(func() error { return s.store.Reset(ctx, key) })
}

// KeyCount returns the number of active keys unless the circuit is open.
func (s *CircuitBreakerStore) KeyCount(ctx context.Context) (int, error) {
	var n int
	err := s.do(func() error {
		var err error
		n, err = s.store.KeyCount(ctx)
		return err
	})
	return n, err
}

// CheckAndAddRequest runs the atomic check unless the circuit is open.
func (s *CircuitBreakerStore) CheckAndAddRequest(ctx context.Context, key string, timestamp time.Time, cutoff time.Time, limit int) (bool, int, error) {
	var (
		allowed bool
		count   int
	)
	err := s.do(func() error {
		var err error
		allowed, count, err = s.store.CheckAndAddRequest(ctx, key, timestamp, cutoff, limit)
		return err
	})
	return allowed, count, err
}
