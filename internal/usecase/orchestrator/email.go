package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/usecase/delivery"
	"notification-dispatch/internal/usecase/idempotency"
)

// Email orchestrates email sends.
type Email struct {
	delivery EmailDelivery
	dedup    Deduplicator
	events   EventLookup
	now      func() time.Time
}

// NewEmail creates the email orchestrator.
func NewEmail(d EmailDelivery, dedup Deduplicator, events EventLookup) *Email {
	return &Email{delivery: d, dedup: dedup, events: events, now: time.Now}
}

// Send validates req and delivers it synchronously.
func (o *Email) Send(ctx context.Context, req *delivery.EmailRequest) (*entity.EmailNotification, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return o.delivery.Deliver(ctx, req)
}

// SendAsync validates req, saves a PENDING record and queues the delivery.
// A repeated event id returns a *DuplicateError.
func (o *Email) SendAsync(ctx context.Context, req *delivery.EmailRequest) (*Accepted, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if err := o.dedup.Begin(ctx, req.EventID); err != nil {
		if errors.Is(err, idempotency.ErrDuplicate) {
			return nil, &DuplicateError{EventID: req.EventID, Existing: o.findExisting(ctx, req.EventID)}
		}
		return nil, err
	}

	n, err := o.delivery.CreatePending(ctx, req)
	if err != nil {
		// Nothing was accepted, so the caller may retry with the same event id.
		if rmErr := o.dedup.Remove(ctx, req.EventID); rmErr != nil {
			slog.Warn("failed to release event id after create failure",
				slog.String("event_id", req.EventID),
				slog.Any("error", rmErr))
			o.dedup.MarkFailed(ctx, req.EventID, err.Error())
		}
		return nil, err
	}
	o.dedup.MarkProcessed(ctx, req.EventID, n.ID)

	o.delivery.DeliverAsync(ctx, req, n.ID)
	return &Accepted{
		NotificationID:             n.ID,
		Status:                     entity.StatusPending,
		Message:                    "Email accepted for processing",
		AcceptedAt:                 o.now(),
		EstimatedProcessingSeconds: 5,
		StatusCheckURL:             statusURL(entity.ChannelEmail, n.ID),
	}, nil
}

// SendBatch runs SendAsync for every request. One failing request does not
// stop the others.
func (o *Email) SendBatch(ctx context.Context, reqs []*delivery.EmailRequest) ([]BatchItem, error) {
	if len(reqs) == 0 {
		return nil, &entity.ValidationError{Field: "requests", Message: "must contain at least one email"}
	}
	if len(reqs) > maxBatchSize {
		return nil, &entity.ValidationError{Field: "requests", Message: "must contain at most 100 emails"}
	}
	items := make([]BatchItem, len(reqs))
	for i, req := range reqs {
		accepted, err := o.SendAsync(ctx, req)
		if err != nil {
			items[i].Error = err.Error()
			continue
		}
		items[i].Accepted = accepted
	}
	return items, nil
}

const maxBatchSize = 100

// Status returns the stored email notification.
func (o *Email) Status(ctx context.Context, id string) (*entity.EmailNotification, error) {
	return o.delivery.FindByID(ctx, id)
}

// findExisting returns the notification accepted earlier for eventID, if known.
func (o *Email) findExisting(ctx context.Context, eventID string) *entity.EmailNotification {
	if rec, ok := o.dedup.Status(ctx, eventID); ok && rec.State == idempotency.StateCompleted && rec.Detail != "" {
		n, err := o.delivery.FindByID(ctx, rec.Detail)
		if err == nil {
			return n
		}
		if !isNotFound(err) {
			slog.Warn("failed to load notification for duplicate event",
				slog.String("event_id", eventID),
				slog.Any("error", err))
		}
	}
	if o.events == nil {
		return nil
	}
	n, err := o.events.FindByEventID(ctx, eventID)
	if err != nil {
		return nil
	}
	return n
}
