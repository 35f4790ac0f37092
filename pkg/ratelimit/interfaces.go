// Package ratelimit provides sliding-window admission control over pluggable stores.
//
// The algorithm is separate from the storage backend so that the same
// decision logic runs against Redis in production and an in-memory store in
// tests or single-node deployments.
package ratelimit

import (
	"context"
	"time"
)

// RateLimitStore defines the interface for storing and retrieving rate limit state.
//
// Keys are scope identifiers such as "global" or "service:billing".
// All methods must be safe for concurrent use.
type RateLimitStore interface {
	// AddRequest records a new request timestamp for the given key.
	AddRequest(ctx context.Context, key string, timestamp time.Time) error

	// GetRequestCount returns the number of requests for the given key
	// that occurred after the cutoff time.
	GetRequestCount(ctx context.Context, key string, cutoff time.Time) (int, error)

	// Reset removes all recorded requests for the given key.
	Reset(ctx context.Context, key string) error

	// KeyCount returns the number of active keys currently in storage.
	KeyCount(ctx context.Context) (int, error)
}

// AtomicRateLimitStore extends RateLimitStore with atomic check-and-add operations.
//
// Implementations must prune, count and conditionally record in one step so that
// concurrent callers, including callers in other processes, cannot overshoot the limit.
type AtomicRateLimitStore interface {
	RateLimitStore

	// CheckAndAddRequest prunes entries at or before cutoff, counts the rest and,
	// if the count is below limit, records timestamp.
	//
	// Returns:
	//   - allowed: true if the request was within limit and added
	//   - count: requests in the window, the current one included when allowed
	//   - err: error if the store could not be reached
	CheckAndAddRequest(ctx context.Context, key string, timestamp time.Time, cutoff time.Time, limit int) (allowed bool, count int, err error)
}

// RateLimitAlgorithm defines the interface for rate limiting algorithms.
type RateLimitAlgorithm interface {
	// IsAllowed determines whether a request should be allowed based on the
	// current rate limit state.
	IsAllowed(ctx context.Context, key string, store RateLimitStore, limit int, window time.Duration) (*RateLimitDecision, error)

	// GetWindowDuration returns the effective time window used by this algorithm.
	GetWindowDuration() time.Duration
}

// RateLimitMetrics defines the interface for recording rate limiting metrics.
type RateLimitMetrics interface {
	// RecordAllowed records an admitted request for the scope ("global" or "service").
	RecordAllowed(scope string)

	// RecordDenied records a rejected request for the scope.
	RecordDenied(scope string)

	// RecordFailOpen records a check that was admitted because the store failed.
	RecordFailOpen(scope string)

	// RecordCheckDuration records the duration of a rate limit check operation.
	RecordCheckDuration(scope string, duration time.Duration)

	// RecordCircuitState records the store breaker state ("closed", "half-open", "open").
	RecordCircuitState(store string, state string)
}

// Clock provides an abstraction for time operations to enable testing.
type Clock interface {
	Now() time.Time
}

// SystemClock is a Clock implementation that uses the system time.
type SystemClock struct{}

// Now returns the current system time.
func (c *SystemClock) Now() time.Time {
	return time.Now()
}
