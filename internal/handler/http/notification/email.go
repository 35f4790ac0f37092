package notification

import (
	"errors"
	"log/slog"
	"net/http"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/handler/http/respond"
	"notification-dispatch/internal/observability/logging"
	"notification-dispatch/internal/observability/metrics"
	"notification-dispatch/internal/usecase/delivery"
	"notification-dispatch/internal/usecase/orchestrator"
)

const channelEmail = string(entity.ChannelEmail)

// EmailSendHandler delivers an email synchronously and returns its final state.
type EmailSendHandler struct{ Svc EmailService }

func (h EmailSendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req delivery.EmailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, entity.ChannelEmail, err)
		return
	}

	n, err := h.Svc.Send(r.Context(), &req)
	if err != nil {
		writeError(w, entity.ChannelEmail, err)
		return
	}
	metrics.RecordNotificationAccepted(channelEmail, "sync", 1)
	respond.JSON(w, http.StatusOK, toEmailDTO(n))
}

// EmailSendAsyncHandler records a PENDING email and queues it.
// A reused eventId yields 409 with the earlier notification when known.
type EmailSendAsyncHandler struct{ Svc EmailService }

func (h EmailSendAsyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req delivery.EmailRequest
	if err := decode(r, &req); err != nil {
		writeError(w, entity.ChannelEmail, err)
		return
	}

	accepted, err := h.Svc.SendAsync(r.Context(), &req)
	if err != nil {
		var dup *orchestrator.DuplicateError
		if errors.As(err, &dup) {
			writeDuplicate(w, dup)
			return
		}
		writeError(w, entity.ChannelEmail, err)
		return
	}
	metrics.RecordNotificationAccepted(channelEmail, "async", 1)
	respond.JSON(w, http.StatusAccepted, accepted)
}

func writeDuplicate(w http.ResponseWriter, dup *orchestrator.DuplicateError) {
	metrics.RecordNotificationRejected(channelEmail, "duplicate")
	body := DuplicateResponse{
		Error:   "event was already accepted",
		Code:    CodeDuplicate,
		EventID: dup.EventID,
	}
	if dup.Existing != nil {
		dto := toEmailDTO(dup.Existing)
		body.Existing = &dto
	}
	respond.JSON(w, http.StatusConflict, body)
}

// EmailBatchHandler queues a JSON array of emails. Items fail independently.
type EmailBatchHandler struct{ Svc EmailService }

func (h EmailBatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var reqs []*delivery.EmailRequest
	if err := decode(r, &reqs); err != nil {
		writeError(w, entity.ChannelEmail, err)
		return
	}
	for _, req := range reqs {
		if req == nil {
			writeError(w, entity.ChannelEmail, &entity.ValidationError{Field: "requests", Message: "must not contain null entries"})
			return
		}
	}

	items, err := h.Svc.SendBatch(r.Context(), reqs)
	if err != nil {
		writeError(w, entity.ChannelEmail, err)
		return
	}

	resp := BatchResponse{Total: len(items), Results: make([]BatchResultEntry, len(items))}
	for i, item := range items {
		entry := BatchResultEntry{Index: i}
		if item.Accepted != nil {
			entry.NotificationID = item.Accepted.NotificationID
			entry.Status = string(item.Accepted.Status)
			entry.StatusCheckURL = item.Accepted.StatusCheckURL
			resp.Accepted++
		} else {
			entry.Error = item.Error
			resp.Failed++
		}
		resp.Results[i] = entry
	}
	if resp.Failed > 0 {
		logging.FromContext(r.Context()).Warn("batch email partially rejected",
			slog.Int("total", resp.Total),
			slog.Int("failed", resp.Failed))
	}
	metrics.RecordNotificationAccepted(channelEmail, "batch", resp.Accepted)
	respond.JSON(w, http.StatusAccepted, resp)
}

// EmailStatusHandler returns the stored email by id.
type EmailStatusHandler struct{ Svc EmailService }

func (h EmailStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, entity.ChannelEmail, err)
		return
	}
	respond.JSON(w, http.StatusOK, toEmailDTO(n))
}
