package selector

import (
	"fmt"

	"notification-dispatch/internal/domain/entity"
)

// EmailSelector picks the email provider. Only the configured provider is used.
type EmailSelector struct {
	*Registry[EmailProvider]
}

// NewEmailSelector builds the email registry.
func NewEmailSelector(active entity.ProviderType, providers ...EmailProvider) (*EmailSelector, error) {
	r, err := NewRegistry(active, providers...)
	if err != nil {
		return nil, err
	}
	return &EmailSelector{Registry: r}, nil
}

// SelectProvider returns the configured provider if it is registered and available.
func (s *EmailSelector) SelectProvider() (EmailProvider, error) {
	if p, ok := s.activeProvider(); ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: no email provider is currently available", ErrProviderNotAvailable)
}
