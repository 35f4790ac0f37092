package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"golang.org/x/sync/errgroup"

	"notification-dispatch/internal/config"
	"notification-dispatch/internal/domain/entity"
	hhttp "notification-dispatch/internal/handler/http"
	"notification-dispatch/internal/handler/http/middleware"
	mongostore "notification-dispatch/internal/infra/adapter/persistence/mongo"
	pgRepo "notification-dispatch/internal/infra/adapter/persistence/postgres"
	"notification-dispatch/internal/infra/audit"
	"notification-dispatch/internal/infra/batch"
	rediscache "notification-dispatch/internal/infra/cache/redis"
	"notification-dispatch/internal/infra/db"
	"notification-dispatch/internal/observability/logging"
	"notification-dispatch/internal/observability/tracing"
	"notification-dispatch/internal/resilience/circuitbreaker"
	"notification-dispatch/internal/usecase/admission"
	"notification-dispatch/internal/usecase/delivery"
	"notification-dispatch/internal/usecase/devicetoken"
	"notification-dispatch/internal/usecase/idempotency"
	"notification-dispatch/internal/usecase/orchestrator"
	"notification-dispatch/pkg/ratelimit"
)

func main() {
	logger := logging.NewLogger()
	slog.SetDefault(logger)

	if err := config.LoadDotEnv(); err != nil {
		logger.Error("failed to load .env", slog.Any("error", err))
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", slog.Any("error", err))
		os.Exit(1)
	}
}

// app holds every long-lived component so shutdown can close them in order.
type app struct {
	logger *slog.Logger

	mongo    *mongo.Client
	redis    *goredis.Client
	auditDB  *sql.DB
	auditPub *audit.Publisher

	emailWriter *batch.Writer[*entity.EmailNotification]
	pushWriter  *batch.Writer[*entity.PushNotification]
	email       *delivery.EmailService
	push        *delivery.PushService

	stopCleanup func()
	stopTracing func(context.Context) error
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a := &app{logger: logger, stopTracing: tracing.Init(cfg.SampleRatio)}
	handler, err := a.build(ctx, cfg)
	if err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return errors.Join(err, a.shutdown(shutdownCtx))
	}

	addr := ":" + strconv.Itoa(cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting",
			slog.String("addr", addr),
			slog.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-serveErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("http shutdown: %w", err))
	}
	runErr = errors.Join(runErr, a.shutdown(shutdownCtx))
	logger.Info("server stopped")
	return runErr
}

// build connects the stores and assembles the delivery pipelines.
// Components created before a failure are left on a for shutdown.
func (a *app) build(ctx context.Context, cfg *config.Config) (http.Handler, error) {
	var err error

	a.mongo, err = mongostore.Connect(ctx, cfg.Mongo)
	if err != nil {
		return nil, err
	}
	mdb := a.mongo.Database(cfg.Mongo.Database)
	if err := mongostore.EnsureIndexes(ctx, mdb); err != nil {
		return nil, fmt.Errorf("ensure mongo indexes: %w", err)
	}

	a.redis, err = rediscache.Connect(ctx, cfg.Redis)
	if err != nil {
		return nil, err
	}

	var auditSink delivery.AuditPublisher
	if err := a.openAudit(ctx, cfg); err != nil {
		return nil, err
	}
	if a.auditPub != nil {
		auditSink = a.auditPub
	}

	breakerCfg := cfg.BreakerConfig()
	if a.auditPub != nil {
		breakerCfg.OnStateChange = a.auditPub.BreakerStateChanged
	}
	breakers := circuitbreaker.NewRegistry(breakerCfg)

	emailSel, pushSel, err := selectors(ctx, cfg)
	if err != nil {
		return nil, err
	}

	emailRepo := mongostore.NewEmailRepo(mdb)
	pushRepo := mongostore.NewPushRepo(mdb)
	tokenRepo := mongostore.NewDeviceTokenRepo(mdb)

	a.emailWriter = batch.NewWriter[*entity.EmailNotification](emailRepo, cfg.EmailBatch())
	a.pushWriter = batch.NewWriter[*entity.PushNotification](pushRepo, cfg.PushBatch())

	a.email = delivery.NewEmailService(emailSel, emailRepo, a.emailWriter, auditSink, breakers, cfg.EmailDelivery())
	a.push = delivery.NewPushService(pushSel, pushRepo, tokenRepo, a.pushWriter, auditSink, breakers, cfg.PushDelivery())

	dedup := idempotency.NewService(rediscache.NewKeyStore(a.redis), cfg.Idempotency.KeyPrefix, cfg.Idempotency.TTL)
	tokens := devicetoken.NewService(tokenRepo)

	limitMetrics := ratelimit.NewPrometheusMetrics(prometheus.DefaultRegisterer)
	limiter := admission.NewLimiter(cfg.RateLimit,
		rateLimitStore(cfg, a.redis, limitMetrics),
		limitMetrics,
		&ratelimit.SystemClock{},
	)
	if !cfg.RateLimit.Enabled {
		a.logger.Warn("rate limiting is DISABLED - not recommended for production")
	}
	a.startCleanup(ctx, limiter, cfg.RateLimitStore.CleanupInterval)

	checks := map[string]hhttp.Check{
		"mongo": mongostore.Healthcheck(a.mongo),
		"redis": rediscache.Healthcheck(a.redis),
	}

	rt := routes{
		logger:       a.logger,
		email:        orchestrator.NewEmail(a.email, dedup, emailRepo),
		push:         orchestrator.NewPush(a.push, tokens),
		providers:    orchestrator.NewProviders(emailSel, pushSel, breakers),
		limits:       limiter,
		devices:      tokens,
		health:       &hhttp.HealthHandler{Checks: checks, AuditDB: a.auditDB, RateLimit: &cfg.RateLimit, Version: cfg.Version},
		ready:        &hhttp.ReadyHandler{Checks: checks},
		admission:    middleware.NewAdmission(limiter, auditSink).Middleware,
		maxBodyBytes: cfg.HTTP.MaxBodyBytes,
		timeout:      cfg.HTTP.RequestTimeout,
	}
	return rt.handler(), nil
}

func (a *app) startCleanup(ctx context.Context, limiter *admission.Limiter, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		runRateLimitCleanup(ctx, limiter, interval)
	}()
	a.stopCleanup = func() {
		cancel()
		<-done
	}
}

// openAudit connects the Postgres audit log. Auditing is disabled, not
// fatal, when DATABASE_URL is unset.
func (a *app) openAudit(ctx context.Context, cfg *config.Config) error {
	if cfg.Postgres.URL == "" {
		a.logger.Warn("DATABASE_URL not set, audit log disabled")
		return nil
	}
	database, err := db.Open(ctx, cfg.Postgres)
	if err != nil {
		return err
	}
	a.auditDB = database
	if err := db.MigrateUp(database); err != nil {
		return fmt.Errorf("migrate audit database: %w", err)
	}
	guarded := circuitbreaker.NewDB(database, circuitbreaker.DBConfig("audit-db"))
	a.auditPub = audit.NewPublisher(pgRepo.NewAuditRepo(guarded), cfg.Audit)
	return nil
}

// shutdown drains the executors, then the batch writers, then the audit
// queue, and finally closes the clients.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error

	if a.stopCleanup != nil {
		a.stopCleanup()
	}

	var executors errgroup.Group
	if a.email != nil {
		executors.Go(func() error { return a.email.Shutdown(ctx) })
	}
	if a.push != nil {
		executors.Go(func() error { return a.push.Shutdown(ctx) })
	}
	errs = append(errs, executors.Wait())

	var writers errgroup.Group
	if a.emailWriter != nil {
		writers.Go(func() error { return a.emailWriter.Close(ctx) })
	}
	if a.pushWriter != nil {
		writers.Go(func() error { return a.pushWriter.Close(ctx) })
	}
	errs = append(errs, writers.Wait())

	if a.auditPub != nil {
		errs = append(errs, a.auditPub.Close(ctx))
	}
	if a.auditDB != nil {
		errs = append(errs, a.auditDB.Close())
	}
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	if a.mongo != nil {
		errs = append(errs, a.mongo.Disconnect(ctx))
	}
	if a.stopTracing != nil {
		errs = append(errs, a.stopTracing(ctx))
	}

	err := errors.Join(errs...)
	if err != nil {
		a.logger.Error("shutdown completed with errors", slog.Any("error", err))
	}
	return err
}
