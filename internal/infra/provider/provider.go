package provider

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"notification-dispatch/internal/domain/entity"
)

// DefaultHTTPTimeout bounds a single provider request when no timeout is configured.
const DefaultHTTPTimeout = 30 * time.Second

// Info is the identity part of a provider. Concrete providers embed it.
type Info struct {
	Kind    entity.ProviderType
	Rank    int
	Enabled bool
}

func (i Info) Type() entity.ProviderType { return i.Kind }
func (i Info) Priority() int             { return i.Rank }
func (i Info) IsAvailable() bool         { return i.Enabled }

// NewHTTPClient returns a client whose requests are traced.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}
