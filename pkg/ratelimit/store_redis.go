package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces rate limit sorted sets in Redis.
const DefaultKeyPrefix = "ratelimit:notification:"

// slidingWindowScript prunes, counts and conditionally adds in one round trip.
// Redis runs scripts atomically, so concurrent callers across processes
// cannot admit more than limit entries per window.
//
// KEYS[1] sorted set key
// ARGV[1] now (ms), ARGV[2] window (ms), ARGV[3] limit, ARGV[4] unique member
// Returns {admitted (0|1), remaining}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  redis.call('PEXPIRE', key, window)
  return {1, limit - count - 1}
end
return {0, 0}
`)

// RedisStore is an AtomicRateLimitStore backed by Redis sorted sets.
// Scores are millisecond timestamps and members are unique per request.
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	keyTTL    time.Duration
}

// RedisStoreConfig holds configuration for RedisStore.
type RedisStoreConfig struct {
	// KeyPrefix is prepended to every scope key. Default: DefaultKeyPrefix
	KeyPrefix string

	// KeyTTL is the expiry applied by the non-atomic AddRequest. Default: 1m
	KeyTTL time.Duration
}

// NewRedisStore creates a RedisStore on top of an existing client.
func NewRedisStore(client redis.UniversalClient, cfg RedisStoreConfig) *RedisStore {
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if cfg.KeyTTL <= 0 {
		cfg.KeyTTL = time.Minute
	}
	return &RedisStore{client: client, keyPrefix: cfg.KeyPrefix, keyTTL: cfg.KeyTTL}
}

func (s *RedisStore) key(scope string) string {
	return s.keyPrefix + scope
}

func member(ts time.Time) string {
	return strconv.FormatInt(ts.UnixMilli(), 10) + "-" + uuid.NewString()
}

// CheckAndAddRequest runs the sliding window script for the scope key.
func (s *RedisStore) CheckAndAddRequest(ctx context.Context, key string, timestamp time.Time, cutoff time.Time, limit int) (bool, int, error) {
	now := timestamp.UnixMilli()
	window := now - cutoff.UnixMilli()

	res, err := slidingWindowScript.Run(ctx, s.client, []string{s.key(key)},
		now, window, limit, member(timestamp)).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("run sliding window script: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected script reply length %d", len(res))
	}

	allowed := res[0] == 1
	if !allowed {
		return false, limit, nil
	}
	return true, limit - int(res[1]), nil
}

// AddRequest records a request without checking the limit.
func (s *RedisStore) AddRequest(ctx context.Context, key string, timestamp time.Time) error {
	k := s.key(key)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, k, redis.Z{Score: float64(timestamp.UnixMilli()), Member: member(timestamp)})
		pipe.PExpire(ctx, k, s.keyTTL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("add request: %w", err)
	}
	return nil
}

// GetRequestCount counts entries scored after cutoff.
func (s *RedisStore) GetRequestCount(ctx context.Context, key string, cutoff time.Time) (int, error) {
	minScore := "(" + strconv.FormatInt(cutoff.UnixMilli(), 10)
	n, err := s.client.ZCount(ctx, s.key(key), minScore, "+inf").Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("count requests: %w", err)
	}
	return int(n), nil
}

// Reset deletes the scope key.
func (s *RedisStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("reset %s: %w", key, err)
	}
	return nil
}

// KeyCount scans for keys under the prefix.
func (s *RedisStore) KeyCount(ctx context.Context) (int, error) {
	count := 0
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("scan keys: %w", err)
	}
	return count, nil
}
