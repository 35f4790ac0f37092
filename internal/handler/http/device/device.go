// Package device exposes push device token registration endpoints.
package device

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/handler/http/respond"
	"notification-dispatch/internal/observability/metrics"
	"notification-dispatch/internal/usecase/devicetoken"
)

// Service is the device token use case.
type Service interface {
	Register(ctx context.Context, req *devicetoken.RegisterRequest) (*entity.DeviceToken, error)
	ListActive(ctx context.Context, userID string) ([]*entity.DeviceToken, error)
	Delete(ctx context.Context, token string) error
}

// DTO is the API view of a device token.
type DTO struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	DeviceToken string     `json:"deviceToken"`
	Platform    string     `json:"platform"`
	DeviceModel string     `json:"deviceModel,omitempty"`
	OSVersion   string     `json:"osVersion,omitempty"`
	AppVersion  string     `json:"appVersion,omitempty"`
	Language    string     `json:"language,omitempty"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastUsedAt  *time.Time `json:"lastUsedAt,omitempty"`
}

func toDTO(t *entity.DeviceToken) DTO {
	return DTO{
		ID:          t.ID,
		UserID:      t.UserID,
		DeviceToken: t.Token,
		Platform:    string(t.Platform),
		DeviceModel: t.DeviceModel,
		OSVersion:   t.OSVersion,
		AppVersion:  t.AppVersion,
		Language:    t.Language,
		Active:      t.Active,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
		LastUsedAt:  t.LastUsedAt,
	}
}

// Register mounts the device routes on mux.
func Register(mux *http.ServeMux, svc Service) {
	mux.Handle("POST /api/v1/notification/push/device/register", RegisterHandler{svc})
	mux.Handle("GET /api/v1/notification/push/device/user/{userId}", ListHandler{svc})
	mux.Handle("DELETE /api/v1/notification/push/device/{token}", DeleteHandler{svc})
}

// RegisterHandler upserts a device token and returns it.
type RegisterHandler struct{ Svc Service }

func (h RegisterHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req devicetoken.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.SafeError(w, http.StatusBadRequest, errors.New("invalid JSON request body"))
		return
	}

	tok, err := h.Svc.Register(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.RecordDeviceTokenRegistered(string(tok.Platform))
	respond.JSON(w, http.StatusOK, toDTO(tok))
}

// ListHandler returns the active devices of a user.
type ListHandler struct{ Svc Service }

func (h ListHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.Svc.ListActive(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]DTO, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, toDTO(t))
	}
	respond.JSON(w, http.StatusOK, out)
}

// DeleteHandler removes a device token.
type DeleteHandler struct{ Svc Service }

func (h DeleteHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), r.PathValue("token")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, entity.ErrInvalidInput):
		respond.SafeErrorV2(w, http.StatusBadRequest,
			respond.NewAppError(http.StatusBadRequest, err.Error(), nil).WithCode("VALIDATION_FAILED"))
	case errors.Is(err, entity.ErrDeviceTokenNotFound), errors.Is(err, entity.ErrNotFound):
		respond.SafeErrorV2(w, http.StatusNotFound,
			respond.NewAppError(http.StatusNotFound, "device token not found", nil).WithCode("NOT_FOUND"))
	default:
		respond.SafeError(w, http.StatusInternalServerError, err)
	}
}
