package ratelimit

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// InMemoryRateLimitStore is a process-local AtomicRateLimitStore.
//
// It serves tests and single-node deployments. The number of keys is bounded;
// when full, the least recently used keys are evicted.
type InMemoryRateLimitStore struct {
	mu       sync.Mutex
	requests map[string]*keyEntry
	lru      *list.List
	maxKeys  int
}

type keyEntry struct {
	timestamps []time.Time
	elem       *list.Element
}

// InMemoryStoreConfig holds configuration for InMemoryRateLimitStore.
type InMemoryStoreConfig struct {
	// MaxKeys is the maximum number of keys kept in memory. Default: 10000
	MaxKeys int
}

// NewInMemoryRateLimitStore creates a new in-memory rate limit store.
func NewInMemoryRateLimitStore(config InMemoryStoreConfig) *InMemoryRateLimitStore {
	if config.MaxKeys <= 0 {
		config.MaxKeys = 10000
	}
	return &InMemoryRateLimitStore{
		requests: make(map[string]*keyEntry),
		lru:      list.New(),
		maxKeys:  config.MaxKeys,
	}
}

// AddRequest records a new request timestamp for the given key.
func (s *InMemoryRateLimitStore) AddRequest(_ context.Context, key string, timestamp time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(key, timestamp)
	return nil
}

// GetRequestCount returns the number of requests after cutoff.
func (s *InMemoryRateLimitStore) GetRequestCount(_ context.Context, key string, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.requests[key]
	if !ok {
		return 0, nil
	}
	return countAfter(entry.timestamps, cutoff), nil
}

// Reset removes all recorded requests for the given key.
func (s *InMemoryRateLimitStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(key)
	return nil
}

// KeyCount returns the number of keys currently tracked.
func (s *InMemoryRateLimitStore) KeyCount(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests), nil
}

// CheckAndAddRequest prunes, counts and conditionally records under one lock.
func (s *InMemoryRateLimitStore) CheckAndAddRequest(_ context.Context, key string, timestamp time.Time, cutoff time.Time, limit int) (bool, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	if entry, ok := s.requests[key]; ok {
		entry.timestamps = pruneBefore(entry.timestamps, cutoff)
		count = len(entry.timestamps)
	}

	if count >= limit {
		return false, count, nil
	}

	s.appendLocked(key, timestamp)
	return true, count + 1, nil
}

// Cleanup drops timestamps at or before cutoff and removes keys left empty.
func (s *InMemoryRateLimitStore) Cleanup(_ context.Context, cutoff time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, entry := range s.requests {
		entry.timestamps = pruneBefore(entry.timestamps, cutoff)
		if len(entry.timestamps) == 0 {
			s.removeLocked(key)
		}
	}
	return nil
}

func (s *InMemoryRateLimitStore) appendLocked(key string, timestamp time.Time) {
	entry, ok := s.requests[key]
	if !ok {
		if len(s.requests) >= s.maxKeys {
			s.evictLocked()
		}
		entry = &keyEntry{elem: s.lru.PushFront(key)}
		s.requests[key] = entry
	} else {
		s.lru.MoveToFront(entry.elem)
	}
	entry.timestamps = append(entry.timestamps, timestamp)
}

func (s *InMemoryRateLimitStore) removeLocked(key string) {
	entry, ok := s.requests[key]
	if !ok {
		return
	}
	s.lru.Remove(entry.elem)
	delete(s.requests, key)
}

// evictLocked drops a tenth of the keys, least recently used first.
func (s *InMemoryRateLimitStore) evictLocked() {
	n := max(s.maxKeys/10, 1)
	for i := 0; i < n; i++ {
		back := s.lru.Back()
		if back == nil {
			return
		}
		s.removeLocked(back.Value.(string))
	}
}

func countAfter(timestamps []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}

// pruneBefore filters in place, keeping timestamps strictly after cutoff.
func pruneBefore(timestamps []time.Time, cutoff time.Time) []time.Time {
	kept := timestamps[:0]
	for _, ts := range timestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	return kept
}
