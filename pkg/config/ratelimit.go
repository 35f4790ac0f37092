package config

import (
	"log/slog"
	"time"

	"notification-dispatch/pkg/ratelimit"
)

// LoadRateLimitConfig reads the admission limits. Invalid values are logged
// and replaced by the production defaults, so the result is always usable.
//
// Environment variables:
//   - RATELIMIT_ENABLED (default: true)
//   - RATELIMIT_GLOBAL_LIMIT: requests per window across all callers (default: 1000)
//   - RATELIMIT_PER_SERVICE_ENABLED (default: true)
//   - RATELIMIT_SERVICE_LIMIT: requests per window per X-Service-Id (default: 200)
//   - RATELIMIT_WINDOW: sliding window length, 1s-1h (default: 1m)
func LoadRateLimitConfig() ratelimit.Config {
	def := ratelimit.DefaultConfig()
	cfg := ratelimit.Config{
		Enabled:           GetEnvBool("RATELIMIT_ENABLED", def.Enabled),
		GlobalLimit:       nonNegative("RATELIMIT_GLOBAL_LIMIT", def.GlobalLimit),
		PerServiceEnabled: GetEnvBool("RATELIMIT_PER_SERVICE_ENABLED", def.PerServiceEnabled),
		ServiceLimit:      nonNegative("RATELIMIT_SERVICE_LIMIT", def.ServiceLimit),
	}

	window := GetEnvDuration("RATELIMIT_WINDOW", def.Window)
	if err := ValidateDurationRange(window, time.Second, time.Hour); err != nil {
		slog.Warn("invalid RATELIMIT_WINDOW, using default",
			slog.String("value", window.String()),
			slog.String("default", def.Window.String()),
			slog.String("error", err.Error()))
		window = def.Window
	}
	cfg.Window = window

	if err := cfg.Validate(); err != nil {
		slog.Warn("rate limit configuration invalid, applying defaults", slog.String("error", err.Error()))
		cfg.ApplyDefaults()
	}
	return cfg
}

func nonNegative(key string, def int) int {
	v := GetEnvInt(key, def)
	if v < 0 {
		slog.Warn("negative value, using default",
			slog.String("key", key),
			slog.Int("value", v),
			slog.Int("default", def))
		return def
	}
	return v
}
