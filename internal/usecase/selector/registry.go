package selector

import (
	"cmp"
	"fmt"
	"log/slog"
	"slices"

	"notification-dispatch/internal/domain/entity"
)

// Registry maps provider types to providers of one channel.
type Registry[P Provider] struct {
	byType map[entity.ProviderType]P
	// ordered is sorted by descending priority, ties broken by type name.
	ordered []P
	active  entity.ProviderType
}

// NewRegistry builds a registry. active names the configured default provider.
// Registering the same type twice is an error.
func NewRegistry[P Provider](active entity.ProviderType, providers ...P) (*Registry[P], error) {
	r := &Registry[P]{
		byType: make(map[entity.ProviderType]P, len(providers)),
		active: active,
	}
	for _, p := range providers {
		if _, dup := r.byType[p.Type()]; dup {
			return nil, fmt.Errorf("provider %s registered twice", p.Type())
		}
		r.byType[p.Type()] = p
		r.ordered = append(r.ordered, p)
	}
	slices.SortStableFunc(r.ordered, func(a, b P) int {
		if c := cmp.Compare(b.Priority(), a.Priority()); c != 0 {
			return c
		}
		return cmp.Compare(a.Type(), b.Type())
	})

	types := make([]string, 0, len(r.ordered))
	for _, p := range r.ordered {
		types = append(types, p.Type().String())
	}
	slog.Info("provider registry initialized",
		slog.String("active", string(active)),
		slog.Any("providers", types))

	return r, nil
}

// Active returns the configured default provider type.
func (r *Registry[P]) Active() entity.ProviderType {
	return r.active
}

// activeProvider returns the configured provider when it is registered and available.
func (r *Registry[P]) activeProvider() (P, bool) {
	p, ok := r.byType[r.active]
	if ok && p.IsAvailable() {
		return p, true
	}
	var zero P
	return zero, false
}

// highestPriorityAvailable returns the first available provider in priority order.
func (r *Registry[P]) highestPriorityAvailable() (P, bool) {
	for _, p := range r.ordered {
		if p.IsAvailable() {
			return p, true
		}
	}
	var zero P
	return zero, false
}

// available returns the provider of type t if it is registered and available.
func (r *Registry[P]) available(t entity.ProviderType) (P, bool) {
	p, ok := r.byType[t]
	if ok && p.IsAvailable() {
		return p, true
	}
	var zero P
	return zero, false
}

// GetProvider looks up a provider by type.
func (r *Registry[P]) GetProvider(t entity.ProviderType) (P, error) {
	p, ok := r.byType[t]
	if !ok {
		var zero P
		return zero, fmt.Errorf("%w: %s is not registered", ErrProviderNotAvailable, t)
	}
	return p, nil
}

// IsProviderAvailable reports the provider's current availability.
func (r *Registry[P]) IsProviderAvailable(t entity.ProviderType) (bool, error) {
	p, err := r.GetProvider(t)
	if err != nil {
		return false, err
	}
	return p.IsAvailable(), nil
}

// AllProviderStatuses snapshots the availability of every registered provider.
func (r *Registry[P]) AllProviderStatuses() map[entity.ProviderType]bool {
	statuses := make(map[entity.ProviderType]bool, len(r.byType))
	for t, p := range r.byType {
		statuses[t] = p.IsAvailable()
	}
	return statuses
}

// Providers returns the registered providers in priority order.
func (r *Registry[P]) Providers() []P {
	return slices.Clone(r.ordered)
}
