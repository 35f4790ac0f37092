package ratelimit

import (
	"fmt"
	"time"
)

// Scope names used as metric labels and key roots.
const (
	ScopeGlobal  = "global"
	ScopeService = "service"
)

// ServiceKey returns the store key for a caller's per-service window.
func ServiceKey(serviceID string) string {
	return ScopeService + ":" + serviceID
}

// Config contains the admission limits evaluated per request.
type Config struct {
	// Enabled switches admission control on. When false every request is admitted.
	Enabled bool

	// GlobalLimit is the system-wide ceiling per window.
	GlobalLimit int

	// PerServiceEnabled adds the service:<id> check after the global one.
	PerServiceEnabled bool

	// ServiceLimit is the per-caller ceiling per window.
	ServiceLimit int

	// Window is the sliding window length.
	Window time.Duration
}

// Validate checks if the Config is valid.
func (c *Config) Validate() error {
	if c.GlobalLimit < 0 {
		return fmt.Errorf("GlobalLimit must be non-negative, got %d", c.GlobalLimit)
	}
	if c.ServiceLimit < 0 {
		return fmt.Errorf("ServiceLimit must be non-negative, got %d", c.ServiceLimit)
	}
	if c.Window < 0 {
		return fmt.Errorf("Window must be non-negative, got %s", c.Window)
	}
	if c.Enabled && c.Window > 0 && c.Window < time.Millisecond {
		return fmt.Errorf("Window must be at least 1ms, got %s", c.Window)
	}
	return nil
}

// ApplyDefaults fills zero values with the production defaults.
func (c *Config) ApplyDefaults() {
	if c.GlobalLimit == 0 {
		c.GlobalLimit = 1000
	}
	if c.ServiceLimit == 0 {
		c.ServiceLimit = 200
	}
	if c.Window == 0 {
		c.Window = time.Minute
	}
}

// DefaultConfig returns the production defaults: 1000/min global, 200/min per service.
func DefaultConfig() Config {
	cfg := Config{Enabled: true, PerServiceEnabled: true}
	cfg.ApplyDefaults()
	return cfg
}
