package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/observability/tracing"
	"notification-dispatch/internal/repository"
	"notification-dispatch/internal/resilience/circuitbreaker"
)

// PushService delivers push notifications to a single device.
type PushService struct {
	selector  PushProviderSelector
	repo      repository.PushNotificationRepository
	tokens    repository.DeviceTokenRepository
	persister Persister[*entity.PushNotification]
	audit     AuditPublisher
	sender    *sender
	executor  *Executor
	now       func() time.Time
}

// NewPushService wires the push pipeline and starts its executor.
func NewPushService(
	sel PushProviderSelector,
	repo repository.PushNotificationRepository,
	tokens repository.DeviceTokenRepository,
	persister Persister[*entity.PushNotification],
	audit AuditPublisher,
	breakers *circuitbreaker.Registry,
	cfg Config,
) *PushService {
	return &PushService{
		selector:  sel,
		repo:      repo,
		tokens:    tokens,
		persister: persister,
		audit:     auditOrNoop(audit),
		sender:    newSender(entity.ChannelPush, cfg, breakers),
		executor:  NewExecutor("push", cfg.Workers, cfg.QueueCapacity),
		now:       time.Now,
	}
}

// CreatePending saves a PENDING record for req and returns it.
func (s *PushService) CreatePending(ctx context.Context, req *PushRequest) (*entity.PushNotification, error) {
	n := req.newNotification(uuid.NewString(), entity.StatusPending, s.now())
	if err := s.repo.Save(ctx, n); err != nil {
		return nil, fmt.Errorf("save pending push notification: %w", err)
	}
	s.audit.Publish(ctx, auditEvent(entity.AuditNotificationCreated, entityPush, n.ID, n.UserID, &n.Delivery, s.now()))
	return n, nil
}

// Deliver sends req synchronously. On failure the FAILED record is persisted
// and a *SendError is returned.
func (s *PushService) Deliver(ctx context.Context, req *PushRequest) (*entity.PushNotification, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "delivery.push.deliver")
	defer span.End()

	n := req.newNotification(uuid.NewString(), entity.StatusProcessing, s.now())
	span.SetAttributes(
		attribute.String("notification.id", n.ID),
		attribute.String("device.platform", string(n.Platform)),
	)

	if err := s.send(ctx, n); err != nil {
		return nil, err
	}
	return n, nil
}

// DeliverAsync hands the delivery of an existing PENDING record to the push
// executor and returns immediately.
func (s *PushService) DeliverAsync(ctx context.Context, notificationID string) {
	link := trace.LinkFromContext(ctx)
	err := s.executor.Submit(func(ctx context.Context) {
		ctx, span := tracing.GetTracer().Start(ctx, "delivery.push.async", trace.WithLinks(link))
		defer span.End()
		s.deliverAsync(ctx, notificationID)
	})
	if err != nil {
		s.reject(context.WithoutCancel(ctx), notificationID, err)
	}
}

func (s *PushService) deliverAsync(ctx context.Context, id string) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		slog.Error("push notification not found for async delivery",
			slog.String("notification_id", id),
			slog.Any("error", err))
		return
	}
	if err := n.MarkProcessing(s.now()); err != nil {
		slog.Warn("skipping async push delivery",
			slog.String("notification_id", id),
			slog.Any("error", err))
		return
	}
	if err := s.repo.Save(ctx, n); err != nil {
		slog.Warn("failed to persist PROCESSING push status",
			slog.String("notification_id", id),
			slog.Any("error", err))
	}

	_ = s.send(ctx, n)
}

func (s *PushService) send(ctx context.Context, n *entity.PushNotification) error {
	start := n.UpdatedAt
	provider, err := s.selector.SelectProviderByPlatform(n.Platform)
	if err != nil {
		return s.fail(ctx, n, "", err, start)
	}

	msg := entity.NewPushMessage(n)
	var messageID string
	err = s.sender.send(ctx, n.ID, provider, func(ctx context.Context) error {
		id, err := provider.Send(ctx, msg)
		if err != nil {
			return err
		}
		messageID = id
		return nil
	})
	if err != nil {
		return s.fail(ctx, n, provider.Type(), err, start)
	}

	now := s.now()
	elapsed := now.Sub(start)
	if err := n.MarkSent(provider.Type(), elapsed, now); err != nil {
		slog.Error("unexpected push status transition", slog.String("notification_id", n.ID), slog.Any("error", err))
	}
	n.ProviderMessageID = messageID
	s.persist(ctx, n)
	recordOutcome(entity.ChannelPush, provider.Type(), "sent", elapsed)
	s.audit.Publish(ctx, auditEvent(entity.AuditPushSent, entityPush, n.ID, n.UserID, &n.Delivery, now))
	slog.Info("push notification sent",
		slog.String("notification_id", n.ID),
		slog.String("provider", string(provider.Type())),
		slog.String("message_id", messageID),
		slog.Duration("processing_time", elapsed))
	return nil
}

// fail records the terminal failure of n. A rejected device token is
// deactivated before the FAILED state is written.
func (s *PushService) fail(ctx context.Context, n *entity.PushNotification, provider entity.ProviderType, cause error, start time.Time) error {
	ctx = context.WithoutCancel(ctx)
	if provider != "" && IsInvalidToken(cause) {
		s.deactivateToken(ctx, n, cause)
	}

	now := s.now()
	if err := n.MarkFailed(provider, cause.Error(), now); err != nil {
		slog.Error("unexpected push status transition", slog.String("notification_id", n.ID), slog.Any("error", err))
	}
	s.persist(ctx, n)
	recordOutcome(entity.ChannelPush, provider, "failed", now.Sub(start))
	s.audit.Publish(ctx, auditEvent(entity.AuditPushFailed, entityPush, n.ID, n.UserID, &n.Delivery, now))
	slog.Warn("push notification failed",
		slog.String("notification_id", n.ID),
		slog.String("provider", providerLabel(provider)),
		slog.Int("retry_count", n.RetryCount),
		slog.Any("error", cause))
	return &SendError{NotificationID: n.ID, Channel: entity.ChannelPush, Provider: provider, Cause: cause}
}

func (s *PushService) deactivateToken(ctx context.Context, n *entity.PushNotification, cause error) {
	if err := s.tokens.Deactivate(ctx, n.DeviceToken); err != nil {
		slog.Error("failed to deactivate device token",
			slog.String("notification_id", n.ID),
			slog.String("user_id", n.UserID),
			slog.Any("error", err))
		return
	}
	deviceTokensDeactivatedTotal.Inc()
	ev := entity.NewAuditEvent(entity.AuditDeviceTokenDeactivated, entityToken, n.DeviceTokenID, "DEACTIVATE", s.now())
	ev.UserID = n.UserID
	ev.ErrorMessage = cause.Error()
	ev.Metadata["notificationId"] = n.ID
	s.audit.Publish(ctx, ev)
	slog.Info("device token deactivated",
		slog.String("notification_id", n.ID),
		slog.String("user_id", n.UserID),
		slog.String("platform", string(n.Platform)))
}

func (s *PushService) reject(ctx context.Context, id string, cause error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		slog.Error("push notification not found for rejected delivery",
			slog.String("notification_id", id),
			slog.Any("error", err))
		return
	}
	_ = s.fail(ctx, n, "", cause, n.CreatedAt)
}

func (s *PushService) persist(ctx context.Context, n *entity.PushNotification) {
	if err := s.persister.Enqueue(ctx, n); err != nil {
		slog.Error("failed to persist push notification",
			slog.String("notification_id", n.ID),
			slog.String("status", string(n.Status)),
			slog.Any("error", err))
	}
}

// FindByID returns the stored push notification.
func (s *PushService) FindByID(ctx context.Context, id string) (*entity.PushNotification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find push notification %s: %w", id, err)
	}
	return n, nil
}

// Shutdown drains the push executor.
func (s *PushService) Shutdown(ctx context.Context) error {
	return s.executor.Shutdown(ctx)
}
