package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SlidingWindowAlgorithm implements a sliding window rate limiting algorithm.
//
// Each admitted request is stored as a timestamp. A request is admitted when
// fewer than limit timestamps fall inside (now - window, now].
//
// Clock Skew Protection:
//   - Tracks the last seen timestamp per key
//   - If the clock goes backwards for a key, the last seen time is used instead
//   - Prevents rate limit bypass through time manipulation
type SlidingWindowAlgorithm struct {
	clock Clock

	// mu protects lastTimestamps and windowDuration
	mu             sync.RWMutex
	lastTimestamps map[string]time.Time
	windowDuration time.Duration
}

// NewSlidingWindowAlgorithm creates a new sliding window rate limiting algorithm.
// A nil clock falls back to SystemClock.
func NewSlidingWindowAlgorithm(clock Clock) *SlidingWindowAlgorithm {
	if clock == nil {
		clock = &SystemClock{}
	}

	return &SlidingWindowAlgorithm{
		clock:          clock,
		lastTimestamps: make(map[string]time.Time),
	}
}

// IsAllowed determines whether a request should be allowed.
//
// When the store implements AtomicRateLimitStore the prune, count and add run as
// one operation in the store. Otherwise the check and the add are separate calls
// and concurrent callers may overshoot the limit.
func (a *SlidingWindowAlgorithm) IsAllowed(
	ctx context.Context,
	key string,
	store RateLimitStore,
	limit int,
	window time.Duration,
) (*RateLimitDecision, error) {
	a.mu.Lock()
	a.windowDuration = window
	a.mu.Unlock()

	now := a.getValidTimestamp(key)
	cutoff := now.Add(-window)
	resetAt := now.Add(window)

	if atomicStore, ok := store.(AtomicRateLimitStore); ok {
		return a.isAllowedAtomic(ctx, key, atomicStore, limit, cutoff, now, resetAt)
	}

	return a.isAllowedNonAtomic(ctx, key, store, limit, cutoff, now, resetAt)
}

func (a *SlidingWindowAlgorithm) isAllowedAtomic(
	ctx context.Context,
	key string,
	store AtomicRateLimitStore,
	limit int,
	cutoff time.Time,
	now time.Time,
	resetAt time.Time,
) (*RateLimitDecision, error) {
	allowed, count, err := store.CheckAndAddRequest(ctx, key, now, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("check and add request: %w", err)
	}

	if allowed {
		return NewAllowedDecision(key, limit, limit-count, resetAt), nil
	}
	return NewDeniedDecision(key, limit, now, resetAt), nil
}

func (a *SlidingWindowAlgorithm) isAllowedNonAtomic(
	ctx context.Context,
	key string,
	store RateLimitStore,
	limit int,
	cutoff time.Time,
	now time.Time,
	resetAt time.Time,
) (*RateLimitDecision, error) {
	count, err := store.GetRequestCount(ctx, key, cutoff)
	if err != nil {
		return nil, fmt.Errorf("get request count: %w", err)
	}

	if count >= limit {
		return NewDeniedDecision(key, limit, now, resetAt), nil
	}

	if err := store.AddRequest(ctx, key, now); err != nil {
		return nil, fmt.Errorf("add request: %w", err)
	}
	return NewAllowedDecision(key, limit, limit-count-1, resetAt), nil
}

// GetWindowDuration returns the window that was last passed to IsAllowed.
func (a *SlidingWindowAlgorithm) GetWindowDuration() time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.windowDuration
}

// Now returns the algorithm's clock time.
func (a *SlidingWindowAlgorithm) Now() time.Time {
	return a.clock.Now()
}

// getValidTimestamp returns the current time with clock skew protection.
func (a *SlidingWindowAlgorithm) getValidTimestamp(key string) time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	lastSeen, exists := a.lastTimestamps[key]

	if exists && now.Before(lastSeen) {
		slog.Warn("clock skew detected, using last valid timestamp",
			slog.String("key", key),
			slog.Time("now", now),
			slog.Time("last_seen", lastSeen),
			slog.Duration("skew", lastSeen.Sub(now)),
		)
		return lastSeen
	}

	a.lastTimestamps[key] = now
	return now
}

// CleanupExpiredTimestamps removes skew tracking entries older than maxAge.
//
// Returns the number of entries removed.
func (a *SlidingWindowAlgorithm) CleanupExpiredTimestamps(maxAge time.Duration) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.clock.Now().Add(-maxAge)
	removed := 0

	for key, timestamp := range a.lastTimestamps {
		if timestamp.Before(cutoff) {
			delete(a.lastTimestamps, key)
			removed++
		}
	}

	if removed > 0 {
		slog.Debug("cleaned up expired timestamp entries",
			slog.Int("removed", removed),
			slog.Int("remaining", len(a.lastTimestamps)),
		)
	}

	return removed
}

// GetTrackedKeysCount returns the number of keys tracked for clock skew protection.
func (a *SlidingWindowAlgorithm) GetTrackedKeysCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.lastTimestamps)
}
