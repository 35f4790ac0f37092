package selector

import (
	"fmt"
	"log/slog"

	"notification-dispatch/internal/domain/entity"
)

// platformPreference lists the providers tried, in order, for each device platform.
var platformPreference = map[entity.Platform][]entity.ProviderType{
	entity.PlatformIOS:     {entity.ProviderAPNS, entity.ProviderFCM},
	entity.PlatformAndroid: {entity.ProviderFCM},
	entity.PlatformWeb:     {entity.ProviderWebPush, entity.ProviderFCM},
}

// PushSelector picks the push provider for a device.
type PushSelector struct {
	*Registry[PushProvider]
}

// NewPushSelector builds the push registry.
func NewPushSelector(active entity.ProviderType, providers ...PushProvider) (*PushSelector, error) {
	r, err := NewRegistry(active, providers...)
	if err != nil {
		return nil, err
	}
	return &PushSelector{Registry: r}, nil
}

// SelectProvider returns the configured provider, falling back to the
// highest-priority available provider.
func (s *PushSelector) SelectProvider() (PushProvider, error) {
	if p, ok := s.activeProvider(); ok {
		return p, nil
	}
	if p, ok := s.highestPriorityAvailable(); ok {
		slog.Warn("active push provider unavailable, using fallback",
			slog.String("active", string(s.active)),
			slog.String("fallback", string(p.Type())))
		return p, nil
	}
	return nil, fmt.Errorf("%w: no push provider is currently available", ErrProviderNotAvailable)
}

// SelectProviderByPlatform tries the platform's preferred providers in order
// and otherwise falls back to the highest-priority available provider.
func (s *PushSelector) SelectProviderByPlatform(platform entity.Platform) (PushProvider, error) {
	preferred, known := platformPreference[platform]
	if !known {
		return s.SelectProvider()
	}

	for _, t := range preferred {
		if p, ok := s.available(t); ok {
			return p, nil
		}
	}

	if p, ok := s.highestPriorityAvailable(); ok {
		slog.Warn("no platform provider available, using highest priority provider",
			slog.String("platform", string(platform)),
			slog.String("provider", string(p.Type())))
		return p, nil
	}
	return nil, fmt.Errorf("%w: no push provider available for %s", ErrProviderNotAvailable, platform)
}
