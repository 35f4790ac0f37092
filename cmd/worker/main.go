package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"

	"notification-dispatch/internal/config"
	mongostore "notification-dispatch/internal/infra/adapter/persistence/mongo"
	workerPkg "notification-dispatch/internal/infra/worker"
	"notification-dispatch/internal/observability/logging"
	"notification-dispatch/internal/usecase/expiry"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(); err != nil {
		logger.Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger); err != nil {
		logger.Error("worker exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	metrics := workerPkg.NewWorkerMetrics()
	cfg, err := workerPkg.LoadConfigFromEnv(logger, metrics)
	if err != nil {
		return fmt.Errorf("load worker configuration: %w", err)
	}
	logger.Info("worker configuration loaded",
		slog.String("expiry_schedule", cfg.ExpirySchedule),
		slog.String("timezone", cfg.Timezone),
		slog.Duration("pending_ttl", cfg.PendingTTL),
		slog.Duration("job_timeout", cfg.JobTimeout),
		slog.Int("health_port", cfg.HealthPort))

	mongoCfg, err := env.ParseAs[mongostore.Config]()
	if err != nil {
		return fmt.Errorf("parse mongo configuration: %w", err)
	}
	client, err := mongostore.Connect(ctx, mongoCfg)
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			logger.Error("failed to disconnect mongo", slog.Any("error", err))
		}
	}()
	mdb := client.Database(mongoCfg.Database)

	expirer := expiry.NewService(mongostore.NewEmailRepo(mdb), mongostore.NewPushRepo(mdb), cfg.PendingTTL)
	job := workerPkg.NewExpiryJob(expirer, cfg, metrics, logger)
	scheduler, err := job.Schedule(ctx)
	if err != nil {
		return err
	}

	health := workerPkg.NewHealthServer(":"+strconv.Itoa(cfg.HealthPort), logger,
		map[string]workerPkg.ReadinessCheck{"mongo": mongostore.Healthcheck(client)})
	healthErr := make(chan error, 1)
	go func() { healthErr <- health.Start(ctx) }()

	scheduler.Start()
	health.SetReady(true)
	logger.Info("worker started")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down worker...")
	case err := <-healthErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = fmt.Errorf("health server: %w", err)
		}
	}

	health.SetReady(false)
	// Stop returns a context that is done once the running pass finishes.
	stopped := scheduler.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(cfg.JobTimeout):
		logger.Warn("expiry job still running at shutdown")
	}
	logger.Info("worker stopped")
	return runErr
}
