package worker

import (
	"bytes"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// globalTestMetrics is shared because promauto registers on the default registry.
var globalTestMetrics = NewWorkerMetrics()

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "*/5 * * * *", cfg.ExpirySchedule)
	assert.Equal(t, "UTC", cfg.Timezone)
	assert.Equal(t, 24*time.Hour, cfg.PendingTTL)
	assert.Equal(t, 5*time.Minute, cfg.JobTimeout)
	assert.Equal(t, 9091, cfg.HealthPort)
	assert.NoError(t, cfg.Validate())
}

func TestWorkerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*WorkerConfig)
		wantErr string
	}{
		{"bad schedule", func(c *WorkerConfig) { c.ExpirySchedule = "every minute" }, "expiry schedule"},
		{"bad timezone", func(c *WorkerConfig) { c.Timezone = "Mars/Olympus" }, "timezone"},
		{"ttl too short", func(c *WorkerConfig) { c.PendingTTL = time.Second }, "pending ttl"},
		{"timeout too long", func(c *WorkerConfig) { c.JobTimeout = 2 * time.Hour }, "job timeout"},
		{"privileged port", func(c *WorkerConfig) { c.HealthPort = 80 }, "health port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWorkerConfig_ValidateCollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ExpirySchedule = "bad"
	cfg.HealthPort = 0

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expiry schedule")
	assert.Contains(t, err.Error(), "health port")
}

func TestLoadConfigFromEnv_Values(t *testing.T) {
	t.Setenv("EXPIRY_SCHEDULE", "0 * * * *")
	t.Setenv("WORKER_TIMEZONE", "Europe/Berlin")
	t.Setenv("PENDING_TTL", "2h")
	t.Setenv("EXPIRY_JOB_TIMEOUT", "30s")
	t.Setenv("WORKER_HEALTH_PORT", "9191")

	cfg, err := LoadConfigFromEnv(slog.Default(), globalTestMetrics)
	require.NoError(t, err)

	assert.Equal(t, "0 * * * *", cfg.ExpirySchedule)
	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, 2*time.Hour, cfg.PendingTTL)
	assert.Equal(t, 30*time.Second, cfg.JobTimeout)
	assert.Equal(t, 9191, cfg.HealthPort)
}

func TestLoadConfigFromEnv_FallsBackPerField(t *testing.T) {
	t.Setenv("EXPIRY_SCHEDULE", "not a cron")
	t.Setenv("PENDING_TTL", "-5m")
	t.Setenv("WORKER_HEALTH_PORT", "9292")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	cfg, err := LoadConfigFromEnv(logger, globalTestMetrics)
	require.NoError(t, err)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.ExpirySchedule, cfg.ExpirySchedule)
	assert.Equal(t, defaults.PendingTTL, cfg.PendingTTL)
	assert.Equal(t, 9292, cfg.HealthPort)
	assert.NoError(t, cfg.Validate())

	logs := buf.String()
	assert.Contains(t, logs, "expiry_schedule")
	assert.Contains(t, logs, "pending_ttl")
	assert.NotContains(t, logs, "health_port")
}
