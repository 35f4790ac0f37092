package notification

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/handler/http/respond"
	"notification-dispatch/internal/observability/metrics"
	"notification-dispatch/internal/usecase/delivery"
	"notification-dispatch/internal/usecase/idempotency"
	"notification-dispatch/internal/usecase/selector"
)

// Error codes returned in the "code" field.
const (
	CodeValidation          = "VALIDATION_FAILED"
	CodeNotFound            = "NOT_FOUND"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	CodeSendFailed          = "NOTIFICATION_SEND_FAILED"
	CodeQueueFull           = "QUEUE_FULL"
	CodeDuplicate           = "DUPLICATE_EVENT"
	CodePayloadTooLarge     = "PAYLOAD_TOO_LARGE"
)

// decode reads a JSON body into v, reporting oversize bodies separately.
func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return respond.NewAppError(http.StatusRequestEntityTooLarge, "request body too large", err).WithCode(CodePayloadTooLarge)
		}
		return respond.NewAppError(http.StatusBadRequest, "invalid JSON request body", err).WithCode(CodeValidation)
	}
	return nil
}

// classify maps a use case error to an AppError and a metric reason.
func classify(channel entity.Channel, err error) (*respond.AppError, string) {
	var appErr *respond.AppError
	if errors.As(err, &appErr) {
		return appErr, "bad_request"
	}

	var sendErr *delivery.SendError
	switch {
	case errors.Is(err, entity.ErrInvalidInput):
		return respond.NewAppError(http.StatusBadRequest, err.Error(), nil).WithCode(CodeValidation), "validation"
	case errors.Is(err, entity.ErrDeviceTokenNotFound), errors.Is(err, entity.ErrNotFound):
		return respond.NewAppError(http.StatusNotFound, err.Error(), nil).WithCode(CodeNotFound), "not_found"
	case errors.Is(err, selector.ErrProviderNotAvailable):
		msg := fmt.Sprintf("no %s provider is available", channelName(channel))
		return respond.NewAppError(http.StatusServiceUnavailable, msg, err).WithCode(CodeProviderUnavailable), "provider_unavailable"
	case errors.Is(err, delivery.ErrQueueFull), errors.Is(err, delivery.ErrExecutorClosed):
		return respond.NewAppError(http.StatusServiceUnavailable, "delivery queue is full, retry later", err).WithCode(CodeQueueFull), "queue_full"
	case errors.As(err, &sendErr):
		msg := fmt.Sprintf("notification %s could not be delivered", sendErr.NotificationID)
		return respond.NewAppError(http.StatusBadGateway, msg, err).WithCode(CodeSendFailed), "send_failed"
	case errors.Is(err, delivery.ErrNotificationSend):
		return respond.NewAppError(http.StatusBadGateway, "notification could not be delivered", err).WithCode(CodeSendFailed), "send_failed"
	case errors.Is(err, idempotency.ErrDuplicate):
		return respond.NewAppError(http.StatusConflict, "event was already accepted", nil).WithCode(CodeDuplicate), "duplicate"
	default:
		return respond.NewAppError(http.StatusInternalServerError, "internal server error", err), "internal"
	}
}

// writeError responds with the mapped status and counts the rejection.
func writeError(w http.ResponseWriter, channel entity.Channel, err error) {
	appErr, reason := classify(channel, err)
	metrics.RecordNotificationRejected(string(channel), reason)
	respond.SafeErrorV2(w, appErr.Code, appErr)
}

func channelName(c entity.Channel) string {
	if c == entity.ChannelPush {
		return "push"
	}
	return "email"
}
