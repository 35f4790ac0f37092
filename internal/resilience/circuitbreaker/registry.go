package circuitbreaker

import "sync"

// Registry owns one breaker per guarded target. Breakers are created on first use
// from the registry's base configuration and shared by every caller afterwards.
type Registry struct {
	mu        sync.RWMutex
	base      Config
	overrides map[string]Config
	breakers  map[string]*CircuitBreaker
}

// NewRegistry creates a registry whose breakers start from base.
func NewRegistry(base Config) *Registry {
	return &Registry{
		base:      base,
		overrides: make(map[string]Config),
		breakers:  make(map[string]*CircuitBreaker),
	}
}

// Configure sets the configuration used when the breaker for name is first created.
func (r *Registry) Configure(name string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overrides[name] = cfg
}

// Get returns the breaker for name, creating it if needed.
func (r *Registry) Get(name string) *CircuitBreaker {
	r.mu.RLock()
	cb, ok := r.breakers[name]
	r.mu.RUnlock()
	if ok {
		return cb
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[name]; ok {
		return cb
	}
	cfg, ok := r.overrides[name]
	if !ok {
		cfg = r.base
	}
	cfg.Name = name
	cb = New(cfg)
	r.breakers[name] = cb
	return cb
}

// States returns a snapshot of every breaker created so far.
func (r *Registry) States() map[string]Metrics {
	r.mu.RLock()
	breakers := make(map[string]*CircuitBreaker, len(r.breakers))
	for name, cb := range r.breakers {
		breakers[name] = cb
	}
	r.mu.RUnlock()

	out := make(map[string]Metrics, len(breakers))
	for name, cb := range breakers {
		out[name] = cb.Metrics()
	}
	return out
}
