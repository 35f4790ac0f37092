package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/usecase/delivery"
)

// Push orchestrates push sends.
type Push struct {
	delivery PushDelivery
	tokens   TokenResolver
	now      func() time.Time
}

// NewPush creates the push orchestrator.
func NewPush(d PushDelivery, tokens TokenResolver) *Push {
	return &Push{delivery: d, tokens: tokens, now: time.Now}
}

// Send validates req, resolves its device token and delivers synchronously.
func (o *Push) Send(ctx context.Context, req *delivery.PushRequest) (*entity.PushNotification, error) {
	if err := o.prepare(ctx, req); err != nil {
		return nil, err
	}
	return o.delivery.Deliver(ctx, req)
}

// SendAsync validates req, resolves its device token, saves a PENDING record
// and queues the delivery.
func (o *Push) SendAsync(ctx context.Context, req *delivery.PushRequest) (*Accepted, error) {
	if err := o.prepare(ctx, req); err != nil {
		return nil, err
	}
	return o.accept(ctx, req, 3)
}

// SendToUser queues one async delivery per active device of req.UserID.
func (o *Push) SendToUser(ctx context.Context, req *delivery.PushRequest) ([]*Accepted, error) {
	if req.UserID == "" {
		return nil, &entity.ValidationError{Field: "userId", Message: "is required for user-based push"}
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	tokens, err := o.tokens.ListActive(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no active device tokens for user %s: %w", req.UserID, entity.ErrDeviceTokenNotFound)
	}

	out := make([]*Accepted, 0, len(tokens))
	for _, tok := range tokens {
		perDevice := *req
		applyToken(&perDevice, tok)
		accepted, err := o.accept(ctx, &perDevice, 0)
		if err != nil {
			slog.Error("failed to queue push for device",
				slog.String("user_id", req.UserID),
				slog.String("token_id", tok.ID),
				slog.Any("error", err))
			continue
		}
		out = append(out, accepted)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("queue push for user %s: no device accepted", req.UserID)
	}
	return out, nil
}

// Status returns the stored push notification.
func (o *Push) Status(ctx context.Context, id string) (*entity.PushNotification, error) {
	return o.delivery.FindByID(ctx, id)
}

func (o *Push) accept(ctx context.Context, req *delivery.PushRequest, estimate int) (*Accepted, error) {
	n, err := o.delivery.CreatePending(ctx, req)
	if err != nil {
		return nil, err
	}
	o.delivery.DeliverAsync(ctx, n.ID)
	return &Accepted{
		NotificationID:             n.ID,
		Status:                     entity.StatusPending,
		Message:                    "Push notification accepted for processing",
		AcceptedAt:                 o.now(),
		EstimatedProcessingSeconds: estimate,
		StatusCheckURL:             statusURL(entity.ChannelPush, n.ID),
	}, nil
}

// prepare validates req and fills in the registered token's platform and id.
// An explicit device token wins over the user's first active device.
func (o *Push) prepare(ctx context.Context, req *delivery.PushRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}
	switch {
	case req.DeviceToken != "":
		tok, err := o.tokens.ActiveByToken(ctx, req.DeviceToken)
		if err != nil {
			return err
		}
		applyToken(req, tok)
	case req.UserID != "":
		tokens, err := o.tokens.ListActive(ctx, req.UserID)
		if err != nil {
			return err
		}
		if len(tokens) == 0 {
			return fmt.Errorf("no active device tokens for user %s: %w", req.UserID, entity.ErrDeviceTokenNotFound)
		}
		applyToken(req, tokens[0])
	default:
		return &entity.ValidationError{Field: "deviceToken", Message: "either deviceToken or userId must be provided"}
	}
	return nil
}

func applyToken(req *delivery.PushRequest, tok *entity.DeviceToken) {
	req.DeviceToken = tok.Token
	req.DeviceTokenID = tok.ID
	req.Platform = tok.Platform
	if req.UserID == "" {
		req.UserID = tok.UserID
	}
}
