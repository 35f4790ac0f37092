package main

import (
	"log/slog"
	"net/http"
	"time"

	hhttp "notification-dispatch/internal/handler/http"
	"notification-dispatch/internal/handler/http/device"
	"notification-dispatch/internal/handler/http/notification"
	"notification-dispatch/internal/handler/http/pathutil"
	"notification-dispatch/internal/handler/http/requestid"
	"notification-dispatch/internal/observability/tracing"
)

// routes groups what the HTTP layer needs from the rest of the process.
type routes struct {
	logger       *slog.Logger
	email        notification.EmailService
	push         notification.PushService
	providers    notification.ProviderReporter
	limits       notification.RateLimitAdmin
	devices      device.Service
	health       *hhttp.HealthHandler
	ready        *hhttp.ReadyHandler
	admission    func(http.Handler) http.Handler
	maxBodyBytes int64
	timeout      time.Duration
}

func (rt routes) handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /health", rt.health)
	mux.Handle("GET /ready", rt.ready)
	mux.Handle("GET /live", &hhttp.LiveHandler{})
	mux.Handle("GET /metrics", hhttp.MetricsHandler())

	notification.Register(mux, rt.email, rt.push, rt.providers, rt.limits)
	device.Register(mux, rt.devices)

	admission := rt.admission
	if admission == nil {
		admission = func(next http.Handler) http.Handler { return next }
	}

	return hhttp.Chain(mux,
		requestid.Middleware,
		tracing.NewMiddleware(spanName),
		hhttp.Recover(rt.logger),
		hhttp.Logging(rt.logger),
		hhttp.MetricsMiddleware,
		hhttp.InputValidation(rt.maxBodyBytes),
		admission,
		hhttp.Timeout(rt.timeout),
	)
}

func spanName(r *http.Request) string {
	return r.Method + " " + pathutil.NormalizePath(r.URL.Path)
}
