package notification

import (
	"net/http"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/handler/http/respond"
	"notification-dispatch/internal/observability/metrics"
	"notification-dispatch/internal/usecase/delivery"
)

const channelPush = string(entity.ChannelPush)

// PushSendHandler delivers a push notification synchronously.
type PushSendHandler struct{ Svc PushService }

func (h PushSendHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req delivery.PushRequest
	if err := decode(r, &req); err != nil {
		writeError(w, entity.ChannelPush, err)
		return
	}

	n, err := h.Svc.Send(r.Context(), &req)
	if err != nil {
		writeError(w, entity.ChannelPush, err)
		return
	}
	metrics.RecordNotificationAccepted(channelPush, "sync", 1)
	respond.JSON(w, http.StatusOK, toPushDTO(n))
}

// PushSendAsyncHandler records a PENDING push notification and queues it.
type PushSendAsyncHandler struct{ Svc PushService }

func (h PushSendAsyncHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req delivery.PushRequest
	if err := decode(r, &req); err != nil {
		writeError(w, entity.ChannelPush, err)
		return
	}

	accepted, err := h.Svc.SendAsync(r.Context(), &req)
	if err != nil {
		writeError(w, entity.ChannelPush, err)
		return
	}
	metrics.RecordNotificationAccepted(channelPush, "async", 1)
	respond.JSON(w, http.StatusAccepted, accepted)
}

// PushSendUserHandler queues one notification per active device of the user.
type PushSendUserHandler struct{ Svc PushService }

func (h PushSendUserHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req delivery.PushRequest
	if err := decode(r, &req); err != nil {
		writeError(w, entity.ChannelPush, err)
		return
	}

	accepted, err := h.Svc.SendToUser(r.Context(), &req)
	if err != nil {
		writeError(w, entity.ChannelPush, err)
		return
	}
	metrics.RecordNotificationAccepted(channelPush, "user", len(accepted))
	respond.JSON(w, http.StatusAccepted, UserPushResponse{
		UserID:        req.UserID,
		DeviceCount:   len(accepted),
		Notifications: accepted,
	})
}

// PushStatusHandler returns the stored push notification by id.
type PushStatusHandler struct{ Svc PushService }

func (h PushStatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	n, err := h.Svc.Status(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, entity.ChannelPush, err)
		return
	}
	respond.JSON(w, http.StatusOK, toPushDTO(n))
}
