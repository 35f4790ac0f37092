// Package middleware provides HTTP middleware for the notification API.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/handler/http/respond"
	"notification-dispatch/internal/usecase/admission"
	"notification-dispatch/pkg/ratelimit"
)

// Headers written by the admission middleware.
const (
	ServiceIDHeader              = "X-Service-Id"
	HeaderRemainingGlobal        = "X-RateLimit-Remaining-Global"
	HeaderRemainingService       = "X-RateLimit-Remaining-Service"
	HeaderRateLimitService       = "X-RateLimit-Service"
	HeaderRateLimitWindow        = "X-RateLimit-Window"
	HeaderRetryAfter             = "Retry-After"
	NotificationPathPrefix       = "/api/v1/notification/"
	rateLimitExceededCode        = "RATE_LIMIT_EXCEEDED"
	rateLimitExceededDescription = "Too Many Requests"
)

// Admitter decides whether a caller may proceed.
type Admitter interface {
	Allow(ctx context.Context, serviceID string) admission.Decision
	Config() ratelimit.Config
}

// AuditPublisher records rejected requests.
type AuditPublisher interface {
	Publish(ctx context.Context, event entity.AuditEvent)
}

// RateLimitResponse is the 429 body.
type RateLimitResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	ServiceID string `json:"serviceId"`
}

// Admission applies the global and per-service limits to the notification routes.
// Other paths pass through untouched.
type Admission struct {
	limiter Admitter
	audit   AuditPublisher
	now     func() time.Time
}

// NewAdmission creates the middleware. audit may be nil.
func NewAdmission(limiter Admitter, audit AuditPublisher) *Admission {
	return &Admission{limiter: limiter, audit: audit, now: time.Now}
}

// Middleware wraps next.
func (a *Admission) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, NotificationPathPrefix) {
			next.ServeHTTP(w, r)
			return
		}

		serviceID := strings.TrimSpace(r.Header.Get(ServiceIDHeader))
		if serviceID == "" {
			serviceID = admission.DefaultServiceID
		}

		cfg := a.limiter.Config()
		d := a.limiter.Allow(r.Context(), serviceID)

		h := w.Header()
		h.Set(HeaderRemainingGlobal, strconv.Itoa(d.RemainingGlobal))
		h.Set(HeaderRemainingService, strconv.Itoa(d.RemainingService))
		h.Set(HeaderRateLimitService, serviceID)
		h.Set(HeaderRateLimitWindow, windowLabel(cfg.Window))

		if d.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		slog.Warn("request rejected by rate limit",
			slog.String("service_id", serviceID),
			slog.String("scope", d.RejectedScope),
			slog.String("path", r.URL.Path))
		a.publishRejection(r, serviceID, d.RejectedScope)

		h.Set(HeaderRetryAfter, strconv.Itoa(int(cfg.Window.Seconds())))
		respond.JSON(w, http.StatusTooManyRequests, RateLimitResponse{
			Error:     rateLimitExceededDescription,
			Message:   rejectionMessage(d.RejectedScope, serviceID),
			Code:      rateLimitExceededCode,
			ServiceID: serviceID,
		})
	})
}

func (a *Admission) publishRejection(r *http.Request, serviceID, scope string) {
	if a.audit == nil {
		return
	}
	ev := entity.NewAuditEvent(entity.AuditRateLimitExceeded, "SERVICE", serviceID, "REQUEST_REJECTED", a.now())
	ev.Status = "REJECTED"
	ev.Metadata["scope"] = scope
	ev.Metadata["path"] = r.URL.Path
	ev.Metadata["method"] = r.Method
	a.audit.Publish(r.Context(), ev)
}

func rejectionMessage(scope, serviceID string) string {
	if scope == ratelimit.ScopeGlobal {
		return "Global rate limit exceeded. Please try again later."
	}
	return fmt.Sprintf("Rate limit exceeded for service %s. Please try again later.", serviceID)
}

// windowLabel renders a window as whole seconds, e.g. "60s".
func windowLabel(window time.Duration) string {
	return strconv.Itoa(int(window.Seconds())) + "s"
}
