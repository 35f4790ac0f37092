// Package delivery moves email and push notifications from request to a
// terminal SENT or FAILED record. Provider calls run through retry, the
// provider's circuit breaker and a per-provider timeout. Terminal records are
// persisted through a batch writer and reported as audit events.
package delivery

import (
	"context"
	"strconv"
	"time"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/usecase/selector"
)

// Persister accepts records for eventual persistence. *batch.Writer satisfies it.
type Persister[T any] interface {
	Enqueue(ctx context.Context, item T) error
}

// AuditPublisher records audit events. Publish must not block.
type AuditPublisher interface {
	Publish(ctx context.Context, event entity.AuditEvent)
}

// EmailProviderSelector picks the email provider for a send.
type EmailProviderSelector interface {
	SelectProvider() (selector.EmailProvider, error)
}

// PushProviderSelector picks the push provider for a device platform.
type PushProviderSelector interface {
	SelectProviderByPlatform(platform entity.Platform) (selector.PushProvider, error)
}

type noopAudit struct{}

func (noopAudit) Publish(context.Context, entity.AuditEvent) {}

func auditOrNoop(a AuditPublisher) AuditPublisher {
	if a == nil {
		return noopAudit{}
	}
	return a
}

const (
	entityEmail = "EMAIL_NOTIFICATION"
	entityPush  = "PUSH_NOTIFICATION"
	entityToken = "DEVICE_TOKEN"
)

func auditEvent(typ entity.AuditEventType, entityType, entityID, userID string, d *entity.Delivery, now time.Time) entity.AuditEvent {
	ev := entity.NewAuditEvent(typ, entityType, entityID, string(typ), now)
	ev.UserID = userID
	if d != nil {
		ev.Status = string(d.Status)
		ev.ErrorMessage = d.ErrorMessage
		if d.ProviderType != "" {
			ev.Metadata["provider"] = string(d.ProviderType)
		}
		if d.ProcessingTime > 0 {
			ev.Metadata["processingTimeMs"] = strconv.FormatInt(d.ProcessingTime.Milliseconds(), 10)
		}
	}
	return ev
}
