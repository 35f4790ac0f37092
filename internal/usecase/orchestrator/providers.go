package orchestrator

import (
	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/resilience/circuitbreaker"
	"notification-dispatch/internal/usecase/selector"
)

// ProviderStatus is the health view of one registered provider.
type ProviderStatus struct {
	Type      entity.ProviderType     `json:"type"`
	Channel   entity.Channel          `json:"channel"`
	Active    bool                    `json:"active"`
	Available bool                    `json:"available"`
	Priority  int                     `json:"priority"`
	Breaker   *circuitbreaker.Metrics `json:"circuitBreaker,omitempty"`
}

// ProviderReport lists every provider per channel, highest priority first.
type ProviderReport struct {
	Email []ProviderStatus `json:"email"`
	Push  []ProviderStatus `json:"push"`
}

// Providers reports provider availability together with breaker state.
type Providers struct {
	email    *selector.Registry[selector.EmailProvider]
	push     *selector.Registry[selector.PushProvider]
	breakers *circuitbreaker.Registry
}

// NewProviders creates the provider status reporter.
func NewProviders(email *selector.EmailSelector, push *selector.PushSelector, breakers *circuitbreaker.Registry) *Providers {
	return &Providers{email: email.Registry, push: push.Registry, breakers: breakers}
}

// Report returns a snapshot. Breakers appear only after their provider has been called.
func (p *Providers) Report() ProviderReport {
	states := p.breakers.States()
	return ProviderReport{
		Email: describe(p.email, states),
		Push:  describe(p.push, states),
	}
}

func describe[P selector.Provider](reg *selector.Registry[P], states map[string]circuitbreaker.Metrics) []ProviderStatus {
	providers := reg.Providers()
	out := make([]ProviderStatus, 0, len(providers))
	for _, pr := range providers {
		st := ProviderStatus{
			Type:      pr.Type(),
			Channel:   pr.Type().Channel(),
			Active:    pr.Type() == reg.Active(),
			Available: pr.IsAvailable(),
			Priority:  pr.Priority(),
		}
		if m, ok := states[string(pr.Type())]; ok {
			st.Breaker = &m
		}
		out = append(out, st)
	}
	return out
}
