package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"notification-dispatch/internal/usecase/expiry"
)

// ExpiryRunner runs one expiry pass. *expiry.Service satisfies it.
type ExpiryRunner interface {
	Run(ctx context.Context) (expiry.Result, error)
}

// ExpiryJob runs the expiry pass on a schedule with a per-run timeout.
type ExpiryJob struct {
	expirer ExpiryRunner
	cfg     *WorkerConfig
	metrics *WorkerMetrics
	logger  *slog.Logger
}

// NewExpiryJob creates the job.
func NewExpiryJob(expirer ExpiryRunner, cfg *WorkerConfig, metrics *WorkerMetrics, logger *slog.Logger) *ExpiryJob {
	return &ExpiryJob{expirer: expirer, cfg: cfg, metrics: metrics, logger: logger}
}

// Run executes a single pass. Errors are logged and counted, never returned.
func (j *ExpiryJob) Run(ctx context.Context) {
	start := time.Now()
	j.metrics.RecordJobRun("started")

	ctx, cancel := context.WithTimeout(ctx, j.cfg.JobTimeout)
	defer cancel()

	res, err := j.expirer.Run(ctx)
	j.metrics.RecordExpired("email", res.Email)
	j.metrics.RecordExpired("push", res.Push)
	j.metrics.RecordJobDuration(time.Since(start).Seconds())
	if err != nil {
		j.metrics.RecordJobRun("failure")
		j.logger.Error("expiry job failed", slog.Any("error", err))
		return
	}

	j.metrics.RecordJobRun("success")
	j.metrics.RecordLastSuccess()
	j.logger.Info("expiry job completed",
		slog.Int64("email_expired", res.Email),
		slog.Int64("push_expired", res.Push),
		slog.Duration("duration", time.Since(start)))
}

// Schedule registers the job on a new cron scheduler in the configured
// timezone. The caller starts and stops the returned scheduler.
func (j *ExpiryJob) Schedule(ctx context.Context) (*cron.Cron, error) {
	loc, err := time.LoadLocation(j.cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", j.cfg.Timezone, err)
	}

	c := cron.New(cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(j.cfg.ExpirySchedule, func() { j.Run(ctx) }); err != nil {
		return nil, fmt.Errorf("add expiry job: %w", err)
	}
	return c, nil
}
