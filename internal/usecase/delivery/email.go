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

// EmailService delivers email notifications.
type EmailService struct {
	selector  EmailProviderSelector
	repo      repository.EmailNotificationRepository
	persister Persister[*entity.EmailNotification]
	audit     AuditPublisher
	sender    *sender
	executor  *Executor
	now       func() time.Time
}

// NewEmailService wires the email pipeline and starts its executor.
func NewEmailService(
	sel EmailProviderSelector,
	repo repository.EmailNotificationRepository,
	persister Persister[*entity.EmailNotification],
	audit AuditPublisher,
	breakers *circuitbreaker.Registry,
	cfg Config,
) *EmailService {
	return &EmailService{
		selector:  sel,
		repo:      repo,
		persister: persister,
		audit:     auditOrNoop(audit),
		sender:    newSender(entity.ChannelEmail, cfg, breakers),
		executor:  NewExecutor("email", cfg.Workers, cfg.QueueCapacity),
		now:       time.Now,
	}
}

// CreatePending saves a PENDING record for req and returns it.
func (s *EmailService) CreatePending(ctx context.Context, req *EmailRequest) (*entity.EmailNotification, error) {
	n := req.newNotification(uuid.NewString(), entity.StatusPending, s.now())
	if err := s.repo.Save(ctx, n); err != nil {
		return nil, fmt.Errorf("save pending email notification: %w", err)
	}
	s.audit.Publish(ctx, auditEvent(entity.AuditNotificationCreated, entityEmail, n.ID, n.UserID, &n.Delivery, s.now()))
	return n, nil
}

// Deliver sends req synchronously. On failure the FAILED record is persisted
// and a *SendError is returned.
func (s *EmailService) Deliver(ctx context.Context, req *EmailRequest) (*entity.EmailNotification, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "delivery.email.deliver")
	defer span.End()

	start := s.now()
	n := req.newNotification(uuid.NewString(), entity.StatusProcessing, start)
	span.SetAttributes(attribute.String("notification.id", n.ID))

	if err := s.send(ctx, n, req); err != nil {
		return nil, err
	}
	return n, nil
}

// DeliverAsync hands the delivery of an existing PENDING record to the email
// executor and returns immediately.
func (s *EmailService) DeliverAsync(ctx context.Context, req *EmailRequest, notificationID string) {
	link := trace.LinkFromContext(ctx)
	err := s.executor.Submit(func(ctx context.Context) {
		ctx, span := tracing.GetTracer().Start(ctx, "delivery.email.async", trace.WithLinks(link))
		defer span.End()
		s.deliverAsync(ctx, req, notificationID)
	})
	if err != nil {
		s.reject(context.WithoutCancel(ctx), notificationID, err)
	}
}

func (s *EmailService) deliverAsync(ctx context.Context, req *EmailRequest, id string) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		slog.Error("email notification not found for async delivery",
			slog.String("notification_id", id),
			slog.Any("error", err))
		return
	}
	if err := n.MarkProcessing(s.now()); err != nil {
		slog.Warn("skipping async email delivery",
			slog.String("notification_id", id),
			slog.Any("error", err))
		return
	}
	if err := s.repo.Save(ctx, n); err != nil {
		slog.Warn("failed to persist PROCESSING email status",
			slog.String("notification_id", id),
			slog.Any("error", err))
	}

	// Terminal failures are recorded by send; nobody is waiting for the error.
	_ = s.send(ctx, n, req)
}

// send selects a provider, runs the send and records the terminal state of n.
func (s *EmailService) send(ctx context.Context, n *entity.EmailNotification, req *EmailRequest) error {
	start := n.UpdatedAt
	provider, err := s.selector.SelectProvider()
	if err != nil {
		return s.fail(ctx, n, "", err, start)
	}

	msg := entity.NewEmailMessage(n, req.attachments())
	err = s.sender.send(ctx, n.ID, provider, func(ctx context.Context) error {
		return provider.Send(ctx, msg)
	})
	if err != nil {
		return s.fail(ctx, n, provider.Type(), err, start)
	}

	now := s.now()
	elapsed := now.Sub(start)
	if err := n.MarkSent(provider.Type(), elapsed, now); err != nil {
		slog.Error("unexpected email status transition", slog.String("notification_id", n.ID), slog.Any("error", err))
	}
	s.persist(ctx, n)
	recordOutcome(entity.ChannelEmail, provider.Type(), "sent", elapsed)
	s.audit.Publish(ctx, auditEvent(entity.AuditEmailSent, entityEmail, n.ID, n.UserID, &n.Delivery, now))
	slog.Info("email notification sent",
		slog.String("notification_id", n.ID),
		slog.String("provider", string(provider.Type())),
		slog.Duration("processing_time", elapsed))
	return nil
}

func (s *EmailService) fail(ctx context.Context, n *entity.EmailNotification, provider entity.ProviderType, cause error, start time.Time) error {
	ctx = context.WithoutCancel(ctx)
	now := s.now()
	if err := n.MarkFailed(provider, cause.Error(), now); err != nil {
		slog.Error("unexpected email status transition", slog.String("notification_id", n.ID), slog.Any("error", err))
	}
	s.persist(ctx, n)
	recordOutcome(entity.ChannelEmail, provider, "failed", now.Sub(start))
	s.audit.Publish(ctx, auditEvent(entity.AuditEmailFailed, entityEmail, n.ID, n.UserID, &n.Delivery, now))
	slog.Warn("email notification failed",
		slog.String("notification_id", n.ID),
		slog.String("provider", providerLabel(provider)),
		slog.Int("retry_count", n.RetryCount),
		slog.Any("error", cause))
	return &SendError{NotificationID: n.ID, Channel: entity.ChannelEmail, Provider: provider, Cause: cause}
}

// reject records the terminal failure of an async delivery the executor refused.
func (s *EmailService) reject(ctx context.Context, id string, cause error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		slog.Error("email notification not found for rejected delivery",
			slog.String("notification_id", id),
			slog.Any("error", err))
		return
	}
	_ = s.fail(ctx, n, "", cause, n.CreatedAt)
}

func (s *EmailService) persist(ctx context.Context, n *entity.EmailNotification) {
	if err := s.persister.Enqueue(ctx, n); err != nil {
		slog.Error("failed to persist email notification",
			slog.String("notification_id", n.ID),
			slog.String("status", string(n.Status)),
			slog.Any("error", err))
	}
}

// FindByID returns the stored email notification.
func (s *EmailService) FindByID(ctx context.Context, id string) (*entity.EmailNotification, error) {
	n, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("find email notification %s: %w", id, err)
	}
	return n, nil
}

// Shutdown drains the email executor.
func (s *EmailService) Shutdown(ctx context.Context) error {
	return s.executor.Shutdown(ctx)
}
