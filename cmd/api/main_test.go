package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-dispatch/internal/config"
	"notification-dispatch/internal/domain/entity"
	hhttp "notification-dispatch/internal/handler/http"
	"notification-dispatch/internal/handler/http/requestid"
	"notification-dispatch/internal/infra/provider/email"
	"notification-dispatch/internal/usecase/selector"
)

func TestEmailProviders_OnlyEnabledAreBuilt(t *testing.T) {
	cfg := &config.Config{
		Email: config.Email{
			DefaultFrom: "no-reply@example.com",
			SMTP:        email.SMTPConfig{Enabled: false},
			SendGrid:    email.SendGridConfig{Enabled: true, APIKey: "sg-key", Priority: 5},
			Postmark:    email.PostmarkConfig{Enabled: true, ServerToken: "pm-token", Priority: 3},
		},
		Providers: map[entity.ProviderType]config.ProviderSettings{
			entity.ProviderSendGrid: {RPS: 10, Burst: 2},
		},
	}

	providers, err := emailProviders(cfg)
	require.NoError(t, err)
	require.Len(t, providers, 2)

	types := []entity.ProviderType{providers[0].Type(), providers[1].Type()}
	assert.ElementsMatch(t, []entity.ProviderType{entity.ProviderSendGrid, entity.ProviderPostmark}, types)
	for _, p := range providers {
		assert.True(t, p.IsAvailable(), p.Type())
	}
}

func TestSelectors_ToleratesUnregisteredActiveProvider(t *testing.T) {
	cfg := &config.Config{
		Email: config.Email{
			ActiveProvider: "SMTP",
			SendGrid:       email.SendGridConfig{Enabled: true, APIKey: "sg-key", Priority: 5},
		},
		Push: config.Push{ActiveProvider: "FCM"},
	}

	emailSel, pushSel, err := selectors(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, emailSel)
	require.NotNil(t, pushSel)

	// email never falls back away from the configured provider
	_, err = emailSel.SelectProvider()
	assert.ErrorIs(t, err, selector.ErrProviderNotAvailable)

	_, err = pushSel.SelectProvider()
	assert.ErrorIs(t, err, selector.ErrProviderNotAvailable)
}

func TestRoutes_HealthEndpointsAndMiddleware(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	healthy := map[string]hhttp.Check{"mongo": func(context.Context) error { return nil }}
	failing := map[string]hhttp.Check{"redis": func(context.Context) error { return errors.New("down") }}

	rt := routes{
		logger:       logger,
		health:       &hhttp.HealthHandler{Checks: healthy, Version: "test"},
		ready:        &hhttp.ReadyHandler{Checks: failing},
		maxBodyBytes: 1 << 20,
		timeout:      5 * time.Second,
	}
	h := rt.handler()

	tests := []struct {
		path string
		want int
	}{
		{"/live", http.StatusOK},
		{"/health", http.StatusOK},
		{"/ready", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
		{"/api/v1/notification/unknown", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, rec.Header().Get(requestid.RequestIDHeader))
		})
	}
}

func TestSpanName_CollapsesIDs(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/notification/email/status/4f1c", nil)
	assert.Equal(t, "GET /api/v1/notification/email/status/:id", spanName(r))
}

func TestAppShutdown_EmptyIsNoop(t *testing.T) {
	a := &app{logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	assert.NoError(t, a.shutdown(context.Background()))
}
