// Package notification exposes the email, push, provider and rate limit endpoints.
package notification

import (
	"context"
	"net/http"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/usecase/delivery"
	"notification-dispatch/internal/usecase/orchestrator"
	"notification-dispatch/pkg/ratelimit"
)

// EmailService is the email orchestration used by the handlers.
type EmailService interface {
	Send(ctx context.Context, req *delivery.EmailRequest) (*entity.EmailNotification, error)
	SendAsync(ctx context.Context, req *delivery.EmailRequest) (*orchestrator.Accepted, error)
	SendBatch(ctx context.Context, reqs []*delivery.EmailRequest) ([]orchestrator.BatchItem, error)
	Status(ctx context.Context, id string) (*entity.EmailNotification, error)
}

// PushService is the push orchestration used by the handlers.
type PushService interface {
	Send(ctx context.Context, req *delivery.PushRequest) (*entity.PushNotification, error)
	SendAsync(ctx context.Context, req *delivery.PushRequest) (*orchestrator.Accepted, error)
	SendToUser(ctx context.Context, req *delivery.PushRequest) ([]*orchestrator.Accepted, error)
	Status(ctx context.Context, id string) (*entity.PushNotification, error)
}

// ProviderReporter lists provider availability and breaker state.
type ProviderReporter interface {
	Report() orchestrator.ProviderReport
}

// RateLimitAdmin inspects and resets admission windows.
type RateLimitAdmin interface {
	Config() ratelimit.Config
	RemainingGlobal(ctx context.Context) int
	CurrentCount(ctx context.Context, key string) (int, error)
	ResetService(ctx context.Context, serviceID string) error
}

const prefix = "/api/v1/notification"

// Register mounts the notification routes on mux.
func Register(mux *http.ServeMux, email EmailService, push PushService, providers ProviderReporter, limits RateLimitAdmin) {
	mux.Handle("POST "+prefix+"/email/send", EmailSendHandler{email})
	mux.Handle("POST "+prefix+"/email/send/async", EmailSendAsyncHandler{email})
	mux.Handle("POST "+prefix+"/email/send/batch", EmailBatchHandler{email})
	mux.Handle("GET "+prefix+"/email/status/{id}", EmailStatusHandler{email})

	mux.Handle("POST "+prefix+"/push/send", PushSendHandler{push})
	mux.Handle("POST "+prefix+"/push/send/async", PushSendAsyncHandler{push})
	mux.Handle("POST "+prefix+"/push/send/user", PushSendUserHandler{push})
	mux.Handle("GET "+prefix+"/push/status/{id}", PushStatusHandler{push})

	mux.Handle("GET "+prefix+"/providers", ProvidersHandler{providers})
	mux.Handle("GET "+prefix+"/ratelimit/{serviceId}", RateLimitStatusHandler{limits})
	mux.Handle("DELETE "+prefix+"/ratelimit/{serviceId}", RateLimitResetHandler{limits})
}
