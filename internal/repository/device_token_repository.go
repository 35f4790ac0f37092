package repository

import (
	"context"

	"notification-dispatch/internal/domain/entity"
)

type DeviceTokenRepository interface {
	Save(ctx context.Context, token *entity.DeviceToken) error
	FindByToken(ctx context.Context, token string) (*entity.DeviceToken, error)
	FindActiveByUser(ctx context.Context, userID string) ([]*entity.DeviceToken, error)
	Deactivate(ctx context.Context, token string) error
	Delete(ctx context.Context, token string) error
}
