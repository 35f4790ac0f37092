package repository

import (
	"context"
	"time"

	"notification-dispatch/internal/domain/entity"
)

// EmailNotificationRepository persists email notifications. Save and SaveAll upsert by ID.
type EmailNotificationRepository interface {
	Save(ctx context.Context, n *entity.EmailNotification) error
	SaveAll(ctx context.Context, ns []*entity.EmailNotification) error
	FindByID(ctx context.Context, id string) (*entity.EmailNotification, error)
	FindByEventID(ctx context.Context, eventID string) (*entity.EmailNotification, error)
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// PushNotificationRepository persists push notifications. Save and SaveAll upsert by ID.
type PushNotificationRepository interface {
	Save(ctx context.Context, n *entity.PushNotification) error
	SaveAll(ctx context.Context, ns []*entity.PushNotification) error
	FindByID(ctx context.Context, id string) (*entity.PushNotification, error)
	ExpirePendingBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
