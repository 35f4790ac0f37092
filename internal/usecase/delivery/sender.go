package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/observability/tracing"
	"notification-dispatch/internal/resilience/circuitbreaker"
	"notification-dispatch/internal/resilience/retry"
	"notification-dispatch/internal/usecase/selector"
)

// DefaultProviderTimeout bounds a single provider call when no per-provider value is set.
const DefaultProviderTimeout = 30 * time.Second

// Config holds the delivery knobs for one channel.
type Config struct {
	Retry            retry.Config
	ProviderTimeouts map[entity.ProviderType]time.Duration
	DefaultTimeout   time.Duration
	Workers          int
	QueueCapacity    int
}

// EmailConfig returns the email channel defaults.
func EmailConfig() Config {
	return Config{Retry: retry.EmailConfig(), DefaultTimeout: DefaultProviderTimeout, Workers: 10, QueueCapacity: 100}
}

// PushConfig returns the push channel defaults.
func PushConfig() Config {
	return Config{Retry: retry.PushConfig(), DefaultTimeout: DefaultProviderTimeout, Workers: 10, QueueCapacity: 100}
}

// sender runs one provider call through retry, then the provider's pacing,
// then its breaker, then the per-provider timeout.
type sender struct {
	channel  entity.Channel
	cfg      Config
	breakers *circuitbreaker.Registry
}

func newSender(channel entity.Channel, cfg Config, breakers *circuitbreaker.Registry) *sender {
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = DefaultProviderTimeout
	}
	return &sender{channel: channel, cfg: cfg, breakers: breakers}
}

func (s *sender) timeoutFor(p entity.ProviderType) time.Duration {
	if d, ok := s.cfg.ProviderTimeouts[p]; ok && d > 0 {
		return d
	}
	return s.cfg.DefaultTimeout
}

func (s *sender) send(ctx context.Context, notificationID string, p selector.Provider, call func(ctx context.Context) error) error {
	provider := p.Type()
	ctx, span := tracing.GetTracer().Start(ctx, "provider.send")
	defer span.End()
	span.SetAttributes(
		attribute.String("notification.id", notificationID),
		attribute.String("notification.channel", string(s.channel)),
		attribute.String("provider.type", string(provider)),
	)

	cfg := s.cfg.Retry
	cfg.Retryable = isRetryable
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		reason := "error"
		if circuitbreaker.IsCallNotPermitted(err) {
			reason = "circuit_open"
			slog.Warn("provider circuit open, backing off",
				slog.String("notification_id", notificationID),
				slog.String("provider", string(provider)),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay))
		}
		deliveryRetriesTotal.WithLabelValues(string(s.channel), string(provider), reason).Inc()
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("error", err.Error())))
	}

	breaker := s.breakers.Get(string(provider))
	timeout := s.timeoutFor(provider)

	pacer, _ := p.(selector.Pacer)

	err := retry.WithBackoff(ctx, cfg, func(ctx context.Context) error {
		if pacer != nil {
			if err := pacer.Pace(ctx); err != nil {
				return err
			}
		}
		return breaker.Execute(ctx, func(ctx context.Context) error {
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			err := call(callCtx)
			if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%s after %v: %w", provider, timeout, errProviderTimeout)
			}
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider send failed")
	}
	return err
}

// isRetryable extends retry.IsRetryable with the delivery-specific terminal errors.
func isRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, selector.ErrProviderNotAvailable),
		errors.Is(err, entity.ErrInvalidInput),
		isTypedInvalidToken(err):
		return false
	case errors.Is(err, errProviderTimeout), circuitbreaker.IsCallNotPermitted(err):
		return true
	}
	return retry.IsRetryable(err)
}
