// Package selector chooses the delivery provider for a notification.
//
// Registries are built once at startup from the configured providers and are
// read-only afterwards, so lookups need no locking.
package selector

import (
	"context"
	"errors"

	"notification-dispatch/internal/domain/entity"
)

// ErrProviderNotAvailable indicates that no registered provider can take the send.
var ErrProviderNotAvailable = errors.New("provider not available")

// Provider is the capability shared by every delivery vendor.
type Provider interface {
	Type() entity.ProviderType
	IsAvailable() bool
	Priority() int
}

// Pacer is implemented by providers with a local send rate. The delivery
// pipeline calls Pace before each attempt, outside the breaker and the call timeout.
type Pacer interface {
	Pace(ctx context.Context) error
}

// EmailProvider delivers email messages.
type EmailProvider interface {
	Provider
	Send(ctx context.Context, msg *entity.EmailMessage) error
}

// PushProvider delivers push messages and returns the vendor's message id when it has one.
type PushProvider interface {
	Provider
	Send(ctx context.Context, msg *entity.PushMessage) (string, error)
}
