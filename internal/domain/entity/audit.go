package entity

import (
	"time"

	"github.com/google/uuid"
)

// AuditEventType classifies audit records.
type AuditEventType string

const (
	AuditEmailSent              AuditEventType = "EMAIL_SENT"
	AuditEmailFailed            AuditEventType = "EMAIL_FAILED"
	AuditEmailRetry             AuditEventType = "EMAIL_RETRY"
	AuditPushSent               AuditEventType = "PUSH_SENT"
	AuditPushFailed             AuditEventType = "PUSH_FAILED"
	AuditRateLimitExceeded      AuditEventType = "RATE_LIMIT_EXCEEDED"
	AuditCircuitBreakerOpened   AuditEventType = "CIRCUIT_BREAKER_OPENED"
	AuditProviderFailed         AuditEventType = "PROVIDER_FAILED"
	AuditNotificationCreated    AuditEventType = "NOTIFICATION_CREATED"
	AuditNotificationProcessed  AuditEventType = "NOTIFICATION_PROCESSED"
	AuditDeviceTokenDeactivated AuditEventType = "DEVICE_TOKEN_DEACTIVATED"
)

// AuditEvent is a best-effort record of something the dispatcher did.
type AuditEvent struct {
	ID           string
	EventType    AuditEventType
	ServiceName  string
	EntityID     string
	EntityType   string
	UserID       string
	Action       string
	Status       string
	ErrorMessage string
	Metadata     map[string]string
	Timestamp    time.Time
}

// NewAuditEvent creates an event with a fresh id stamped at now.
func NewAuditEvent(eventType AuditEventType, entityType, entityID, action string, now time.Time) AuditEvent {
	return AuditEvent{
		ID:          uuid.NewString(),
		EventType:   eventType,
		ServiceName: "notification-dispatch",
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Metadata:    map[string]string{},
		Timestamp:   now,
	}
}
