package notification

import (
	"errors"
	"net/http"

	"notification-dispatch/internal/handler/http/respond"
	"notification-dispatch/pkg/ratelimit"
)

// ProvidersHandler reports every provider with its availability and breaker state.
type ProvidersHandler struct{ Reporter ProviderReporter }

func (h ProvidersHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	respond.JSON(w, http.StatusOK, h.Reporter.Report())
}

// RateLimitStatusHandler shows the remaining capacity for a caller.
// Counts are read without reserving a slot and may be stale.
type RateLimitStatusHandler struct{ Limits RateLimitAdmin }

func (h RateLimitStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serviceID := r.PathValue("serviceId")
	if serviceID == "" {
		respond.SafeError(w, http.StatusBadRequest, errors.New("serviceId is required"))
		return
	}

	cfg := h.Limits.Config()
	ctx := r.Context()
	count, err := h.Limits.CurrentCount(ctx, ratelimit.ServiceKey(serviceID))
	if err != nil {
		respond.SafeErrorV2(w, http.StatusServiceUnavailable,
			respond.NewAppError(http.StatusServiceUnavailable, "rate limit store unavailable", err))
		return
	}

	respond.JSON(w, http.StatusOK, RateLimitStatus{
		ServiceID:         serviceID,
		Enabled:           cfg.Enabled,
		GlobalLimit:       cfg.GlobalLimit,
		GlobalRemaining:   h.Limits.RemainingGlobal(ctx),
		PerServiceEnabled: cfg.PerServiceEnabled,
		ServiceLimit:      cfg.ServiceLimit,
		ServiceRemaining:  max(cfg.ServiceLimit-count, 0),
		ServiceCount:      count,
		WindowSeconds:     int(cfg.Window.Seconds()),
	})
}

// RateLimitResetHandler clears a caller's window.
type RateLimitResetHandler struct{ Limits RateLimitAdmin }

func (h RateLimitResetHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	serviceID := r.PathValue("serviceId")
	if serviceID == "" {
		respond.SafeError(w, http.StatusBadRequest, errors.New("serviceId is required"))
		return
	}
	if err := h.Limits.ResetService(r.Context(), serviceID); err != nil {
		respond.SafeErrorV2(w, http.StatusServiceUnavailable,
			respond.NewAppError(http.StatusServiceUnavailable, "rate limit store unavailable", err))
		return
	}
	respond.JSON(w, http.StatusOK, map[string]string{
		"serviceId": serviceID,
		"message":   "rate limit reset",
	})
}
