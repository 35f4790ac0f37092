package main

import (
	"context"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"notification-dispatch/internal/config"
	"notification-dispatch/internal/usecase/admission"
	"notification-dispatch/pkg/ratelimit"
)

// rateLimitStore builds the admission window store for the configured backend.
// Redis is wrapped in a fail-fast breaker so an outage admits requests
// without a network timeout per check.
func rateLimitStore(cfg *config.Config, rdb goredis.UniversalClient, metrics ratelimit.RateLimitMetrics) ratelimit.RateLimitStore {
	rs := cfg.RateLimitStore
	if rs.Backend == config.RateLimitBackendMemory {
		slog.Warn("rate limit windows are process-local, limits apply per instance",
			slog.Int("max_keys", rs.MemoryMaxKeys))
		return ratelimit.NewInMemoryRateLimitStore(ratelimit.InMemoryStoreConfig{MaxKeys: rs.MemoryMaxKeys})
	}

	redisStore := ratelimit.NewRedisStore(rdb, ratelimit.RedisStoreConfig{
		KeyPrefix: cfg.RateLimitKeyPrefix,
		KeyTTL:    cfg.RateLimit.Window * 2,
	})
	return ratelimit.NewCircuitBreakerStore(redisStore, ratelimit.CircuitBreakerConfig{
		Name:             config.RateLimitBackendRedis,
		FailureThreshold: rs.BreakerFailureThreshold,
		RecoveryTimeout:  rs.BreakerRecoveryTimeout,
		Metrics:          metrics,
	})
}

// runRateLimitCleanup prunes idle admission keys every interval until ctx is done.
func runRateLimitCleanup(ctx context.Context, limiter *admission.Limiter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("rate limit cleanup started", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			slog.Info("rate limit cleanup stopped")
			return
		case <-ticker.C:
			removed := limiter.Cleanup(ctx)
			slog.Debug("rate limit cleanup completed",
				slog.Int("removed", removed),
				slog.Int("tracked", limiter.TrackedKeys()))
		}
	}
}
