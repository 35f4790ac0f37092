// Package admission applies the global and per-service request ceilings
// in front of the notification endpoints.
package admission

import (
	"context"
	"log/slog"
	"time"

	"notification-dispatch/pkg/ratelimit"
)

// DefaultServiceID is used when a caller does not identify itself.
const DefaultServiceID = "unknown-service"

// Decision is the combined outcome of the global and service checks.
type Decision struct {
	Allowed bool

	// RejectedScope is ratelimit.ScopeGlobal or ratelimit.ScopeService when rejected.
	RejectedScope string

	RemainingGlobal  int
	RemainingService int
	RetryAfter       time.Duration

	// FailedOpen is set when a store error caused the request to be admitted.
	FailedOpen bool
}

// Limiter evaluates the global window first and the caller's window second.
// Both must admit. Store failures admit the request.
type Limiter struct {
	cfg     ratelimit.Config
	store   ratelimit.RateLimitStore
	algo    *ratelimit.SlidingWindowAlgorithm
	metrics ratelimit.RateLimitMetrics
}

// NewLimiter creates a Limiter. A nil metrics falls back to no-op and a nil clock to the system clock.
func NewLimiter(cfg ratelimit.Config, store ratelimit.RateLimitStore, metrics ratelimit.RateLimitMetrics, clock ratelimit.Clock) *Limiter {
	cfg.ApplyDefaults()
	if metrics == nil {
		metrics = ratelimit.NewNoOpMetrics()
	}
	return &Limiter{
		cfg:     cfg,
		store:   store,
		algo:    ratelimit.NewSlidingWindowAlgorithm(clock),
		metrics: metrics,
	}
}

// Config returns the effective limits.
func (l *Limiter) Config() ratelimit.Config {
	return l.cfg
}

// Allow checks the global scope, then service:<serviceID> when per-service limits are on.
func (l *Limiter) Allow(ctx context.Context, serviceID string) Decision {
	if serviceID == "" {
		serviceID = DefaultServiceID
	}
	if !l.cfg.Enabled {
		return Decision{Allowed: true, RemainingGlobal: l.cfg.GlobalLimit, RemainingService: l.cfg.ServiceLimit}
	}

	d := Decision{Allowed: true, RemainingService: l.cfg.ServiceLimit}

	global, failedOpen := l.check(ctx, ratelimit.ScopeGlobal, ratelimit.ScopeGlobal, l.cfg.GlobalLimit)
	d.FailedOpen = failedOpen
	if global == nil {
		d.RemainingGlobal = l.cfg.GlobalLimit
	} else {
		d.RemainingGlobal = global.Remaining
		if !global.Allowed {
			d.Allowed = false
			d.RejectedScope = ratelimit.ScopeGlobal
			d.RetryAfter = global.RetryAfter
			if l.cfg.PerServiceEnabled {
				d.RemainingService = l.RemainingForService(ctx, serviceID)
			}
			slog.Warn("global rate limit exceeded",
				slog.String("service_id", serviceID),
				slog.Int("limit", l.cfg.GlobalLimit))
			return d
		}
	}

	if !l.cfg.PerServiceEnabled {
		return d
	}

	svc, failedOpen := l.check(ctx, ratelimit.ScopeService, ratelimit.ServiceKey(serviceID), l.cfg.ServiceLimit)
	d.FailedOpen = d.FailedOpen || failedOpen
	if svc == nil {
		return d
	}
	d.RemainingService = svc.Remaining
	if !svc.Allowed {
		d.Allowed = false
		d.RejectedScope = ratelimit.ScopeService
		d.RetryAfter = svc.RetryAfter
		slog.Warn("service rate limit exceeded",
			slog.String("service_id", serviceID),
			slog.Int("limit", l.cfg.ServiceLimit))
	}
	return d
}

// check returns nil and true when the store failed and the request is admitted anyway.
func (l *Limiter) check(ctx context.Context, scope, key string, limit int) (*ratelimit.RateLimitDecision, bool) {
	start := time.Now()
	decision, err := l.algo.IsAllowed(ctx, key, l.store, limit, l.cfg.Window)
	l.metrics.RecordCheckDuration(scope, time.Since(start))

	if err != nil {
		l.metrics.RecordFailOpen(scope)
		slog.Warn("rate limit check failed, admitting request",
			slog.String("key", key),
			slog.Any("error", err))
		return nil, true
	}

	if decision.Allowed {
		l.metrics.RecordAllowed(scope)
	} else {
		l.metrics.RecordDenied(scope)
	}
	return decision, false
}

// CurrentCount returns the number of requests in the current window for a store key.
// The value is racy and meant for diagnostics only.
func (l *Limiter) CurrentCount(ctx context.Context, key string) (int, error) {
	cutoff := l.algo.Now().Add(-l.cfg.Window)
	return l.store.GetRequestCount(ctx, key, cutoff)
}

// RemainingGlobal estimates the capacity left in the global window.
// Store errors report the full limit.
func (l *Limiter) RemainingGlobal(ctx context.Context) int {
	return l.remaining(ctx, ratelimit.ScopeGlobal, l.cfg.GlobalLimit)
}

// RemainingForService estimates the capacity left in the caller's window.
func (l *Limiter) RemainingForService(ctx context.Context, serviceID string) int {
	return l.remaining(ctx, ratelimit.ServiceKey(serviceID), l.cfg.ServiceLimit)
}

func (l *Limiter) remaining(ctx context.Context, key string, limit int) int {
	count, err := l.CurrentCount(ctx, key)
	if err != nil {
		slog.Debug("rate limit introspection failed",
			slog.String("key", key),
			slog.Any("error", err))
		return limit
	}
	return max(limit-count, 0)
}

// ResetService clears the caller's window.
func (l *Limiter) ResetService(ctx context.Context, serviceID string) error {
	if err := l.store.Reset(ctx, ratelimit.ServiceKey(serviceID)); err != nil {
		return err
	}
	slog.Info("rate limit reset", slog.String("service_id", serviceID))
	return nil
}

// storeCleaner is implemented by stores that keep timestamps in process.
type storeCleaner interface {
	Cleanup(ctx context.Context, cutoff time.Time) error
}

// Cleanup forgets keys idle for more than two windows, both in the skew
// tracker and in an in-process store. It returns the number of tracker
// entries removed.
func (l *Limiter) Cleanup(ctx context.Context) int {
	maxAge := 2 * l.cfg.Window
	removed := l.algo.CleanupExpiredTimestamps(maxAge)
	if c, ok := l.store.(storeCleaner); ok {
		if err := c.Cleanup(ctx, l.algo.Now().Add(-maxAge)); err != nil {
			slog.Warn("rate limit store cleanup failed", slog.Any("error", err))
		}
	}
	return removed
}

// TrackedKeys returns how many keys the skew tracker currently holds.
func (l *Limiter) TrackedKeys() int {
	return l.algo.GetTrackedKeysCount()
}
