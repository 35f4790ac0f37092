// Package orchestrator validates notification requests, resolves device
// tokens and event ids, and hands the work to the delivery pipelines.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/usecase/delivery"
	"notification-dispatch/internal/usecase/idempotency"
)

// EmailDelivery is the email pipeline used by the orchestrator.
type EmailDelivery interface {
	Deliver(ctx context.Context, req *delivery.EmailRequest) (*entity.EmailNotification, error)
	CreatePending(ctx context.Context, req *delivery.EmailRequest) (*entity.EmailNotification, error)
	DeliverAsync(ctx context.Context, req *delivery.EmailRequest, notificationID string)
	FindByID(ctx context.Context, id string) (*entity.EmailNotification, error)
}

// PushDelivery is the push pipeline used by the orchestrator.
type PushDelivery interface {
	Deliver(ctx context.Context, req *delivery.PushRequest) (*entity.PushNotification, error)
	CreatePending(ctx context.Context, req *delivery.PushRequest) (*entity.PushNotification, error)
	DeliverAsync(ctx context.Context, notificationID string)
	FindByID(ctx context.Context, id string) (*entity.PushNotification, error)
}

// Deduplicator claims event ids and remembers their outcome.
type Deduplicator interface {
	Begin(ctx context.Context, eventID string) error
	MarkProcessed(ctx context.Context, eventID, notificationID string)
	MarkFailed(ctx context.Context, eventID, reason string)
	Status(ctx context.Context, eventID string) (idempotency.Record, bool)
	Remove(ctx context.Context, eventID string) error
}

// EventLookup finds the email created for an event id.
type EventLookup interface {
	FindByEventID(ctx context.Context, eventID string) (*entity.EmailNotification, error)
}

// TokenResolver looks up registered device tokens.
type TokenResolver interface {
	ActiveByToken(ctx context.Context, value string) (*entity.DeviceToken, error)
	ListActive(ctx context.Context, userID string) ([]*entity.DeviceToken, error)
}

// Accepted describes a notification queued for async delivery.
type Accepted struct {
	NotificationID             string        `json:"notificationId"`
	Status                     entity.Status `json:"status"`
	Message                    string        `json:"message"`
	AcceptedAt                 time.Time     `json:"acceptedAt"`
	EstimatedProcessingSeconds int           `json:"estimatedProcessingTimeSeconds,omitempty"`
	StatusCheckURL             string        `json:"statusCheckUrl"`
}

// DuplicateError is returned when an async email reuses an event id.
// Existing is set when the earlier notification could be found.
type DuplicateError struct {
	EventID  string
	Existing *entity.EmailNotification
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("event %s was already accepted", e.EventID)
}

func (e *DuplicateError) Unwrap() error {
	return idempotency.ErrDuplicate
}

// BatchItem is the outcome of one request in a batch send.
type BatchItem struct {
	Accepted *Accepted `json:"accepted,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func statusURL(channel entity.Channel, id string) string {
	if channel == entity.ChannelPush {
		return "/api/v1/notification/push/status/" + id
	}
	return "/api/v1/notification/email/status/" + id
}

// isNotFound reports whether err means the looked-up record does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, entity.ErrNotFound)
}
