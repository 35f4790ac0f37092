package worker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"notification-dispatch/internal/pkg/config"
)

// WorkerConfig holds the configuration for the maintenance worker.
//
// Configuration sources:
//   - Environment variables (loaded via LoadConfigFromEnv)
//   - Default values (provided by DefaultConfig)
//
// Invalid values never stop the worker: each one falls back to its default,
// is logged, and is counted in the config metrics.
type WorkerConfig struct {
	// ExpirySchedule is the cron expression for the expiry job.
	// Format: "minute hour day month weekday"
	// Default: "*/5 * * * *" (every five minutes)
	ExpirySchedule string

	// Timezone is the IANA timezone the schedule is evaluated in.
	// Default: "UTC"
	Timezone string

	// PendingTTL is how long a notification may stay PENDING before it is expired.
	// Range: 1m-168h
	// Default: 24h
	PendingTTL time.Duration

	// JobTimeout bounds a single expiry run.
	// Range: 10s-1h
	// Default: 5m
	JobTimeout time.Duration

	// HealthPort is the port for the health and metrics server.
	// Range: 1024-65535
	// Default: 9091
	HealthPort int
}

// DefaultConfig returns a WorkerConfig with default values.
func DefaultConfig() WorkerConfig {
	return WorkerConfig{
		ExpirySchedule: "*/5 * * * *",
		Timezone:       "UTC",
		PendingTTL:     24 * time.Hour,
		JobTimeout:     5 * time.Minute,
		HealthPort:     9091,
	}
}

// Validate checks every field and returns all failures joined together.
func (c *WorkerConfig) Validate() error {
	var errs []error

	if err := config.ValidateCronSchedule(c.ExpirySchedule); err != nil {
		errs = append(errs, fmt.Errorf("expiry schedule: %w", err))
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if err := config.ValidateDuration(c.PendingTTL, time.Minute, 168*time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("pending ttl: %w", err))
	}
	if err := config.ValidateDuration(c.JobTimeout, 10*time.Second, time.Hour); err != nil {
		errs = append(errs, fmt.Errorf("job timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// LoadConfigFromEnv loads the worker configuration with per-field fallback to
// defaults. It never returns an invalid configuration.
//
// Environment variables:
//   - EXPIRY_SCHEDULE: cron expression (default: "*/5 * * * *")
//   - WORKER_TIMEZONE: IANA timezone (default: "UTC")
//   - PENDING_TTL: duration, 1m-168h (default: 24h)
//   - EXPIRY_JOB_TIMEOUT: duration, 10s-1h (default: 5m)
//   - WORKER_HEALTH_PORT: integer 1024-65535 (default: 9091)
func LoadConfigFromEnv(logger *slog.Logger, metrics *WorkerMetrics) (*WorkerConfig, error) {
	cfg := DefaultConfig()
	fallbackApplied := false

	report := func(field string, applied bool, warning string) {
		if !applied {
			return
		}
		fallbackApplied = true
		metrics.Config.RecordFallback(field)
		logger.Warn("configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", warning))
	}

	schedule := config.LoadEnvString("EXPIRY_SCHEDULE", cfg.ExpirySchedule, config.ValidateCronSchedule)
	cfg.ExpirySchedule = schedule.Value
	report("expiry_schedule", schedule.FallbackApplied, schedule.Warning)

	tz := config.LoadEnvString("WORKER_TIMEZONE", cfg.Timezone, config.ValidateTimezone)
	cfg.Timezone = tz.Value
	report("timezone", tz.FallbackApplied, tz.Warning)

	ttl := config.LoadEnvDuration("PENDING_TTL", cfg.PendingTTL, func(d time.Duration) error {
		return config.ValidateDuration(d, time.Minute, 168*time.Hour)
	})
	cfg.PendingTTL = ttl.Value
	report("pending_ttl", ttl.FallbackApplied, ttl.Warning)

	timeout := config.LoadEnvDuration("EXPIRY_JOB_TIMEOUT", cfg.JobTimeout, func(d time.Duration) error {
		return config.ValidateDuration(d, 10*time.Second, time.Hour)
	})
	cfg.JobTimeout = timeout.Value
	report("job_timeout", timeout.FallbackApplied, timeout.Warning)

	port := config.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, func(v int) error {
		return config.ValidateIntRange(v, 1024, 65535)
	})
	cfg.HealthPort = port.Value
	report("health_port", port.FallbackApplied, port.Warning)

	metrics.Config.Loaded(fallbackApplied)

	return &cfg, nil
}
