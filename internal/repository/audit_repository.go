package repository

import (
	"context"

	"notification-dispatch/internal/domain/entity"
)

type AuditRepository interface {
	InsertBatch(ctx context.Context, events []entity.AuditEvent) error
}
