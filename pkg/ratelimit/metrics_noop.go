package ratelimit

import "time"

// NoOpMetrics implements RateLimitMetrics and records nothing.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new NoOpMetrics instance.
func NewNoOpMetrics() *NoOpMetrics {
	return &NoOpMetrics{}
}

func (m *NoOpMetrics) RecordAllowed(string)                      {}
func (m *NoOpMetrics) RecordDenied(string)                       {}
func (m *NoOpMetrics) RecordFailOpen(string)                     {}
func (m *NoOpMetrics) RecordCheckDuration(string, time.Duration) {}
func (m *NoOpMetrics) RecordCircuitState(string, string)         {}
