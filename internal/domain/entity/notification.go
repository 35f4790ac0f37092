package entity

import (
	"time"
)

// Delivery holds the lifecycle state shared by every notification channel.
// Only the pipeline task that owns a notification mutates it.
type Delivery struct {
	Status         Status
	ProviderType   ProviderType
	RetryCount     int
	ErrorMessage   string
	ProcessingTime time.Duration
	CreatedAt      time.Time
	UpdatedAt      time.Time
	SentAt         *time.Time
}

// NewDelivery returns lifecycle state starting in status at now.
func NewDelivery(status Status, now time.Time) Delivery {
	return Delivery{Status: status, CreatedAt: now, UpdatedAt: now}
}

func (d *Delivery) transition(next Status, now time.Time) error {
	if !d.Status.CanTransitionTo(next) {
		return &TransitionError{From: d.Status, To: next}
	}
	d.Status = next
	d.UpdatedAt = now
	return nil
}

// MarkProcessing moves a pending or retrying notification into PROCESSING.
func (d *Delivery) MarkProcessing(now time.Time) error {
	return d.transition(StatusProcessing, now)
}

// MarkSent records a successful hand-off to provider.
func (d *Delivery) MarkSent(provider ProviderType, elapsed time.Duration, now time.Time) error {
	if err := d.transition(StatusSent, now); err != nil {
		return err
	}
	d.ProviderType = provider
	d.ProcessingTime = elapsed
	d.ErrorMessage = ""
	sentAt := now
	d.SentAt = &sentAt
	return nil
}

// MarkFailed records a terminal failure. RetryCount grows by exactly one per call.
// provider may be empty when no provider was selected.
func (d *Delivery) MarkFailed(provider ProviderType, reason string, now time.Time) error {
	if err := d.transition(StatusFailed, now); err != nil {
		return err
	}
	if provider != "" {
		d.ProviderType = provider
	}
	d.ErrorMessage = reason
	d.RetryCount++
	return nil
}

// MarkExpired moves a notification that never left PENDING into EXPIRED.
func (d *Delivery) MarkExpired(now time.Time) error {
	return d.transition(StatusExpired, now)
}

// MarkCancelled moves a pending notification into CANCELLED.
func (d *Delivery) MarkCancelled(now time.Time) error {
	return d.transition(StatusCancelled, now)
}

// EmailPriority mirrors the X-Priority header scale, 1 being the most urgent.
type EmailPriority int

const (
	PriorityHighest EmailPriority = 1
	PriorityHigh    EmailPriority = 2
	PriorityNormal  EmailPriority = 3
	PriorityLow     EmailPriority = 4
	PriorityLowest  EmailPriority = 5
)

// EmailNotification is a single email delivery and its lifecycle.
type EmailNotification struct {
	ID          string
	EventID     string
	UserID      string
	From        string
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	Body        string
	IsHTML      bool
	Priority    EmailPriority
	TemplateID  string
	Attachments []string // file names; content is not persisted
	Delivery
}

// PushNotification is a single push delivery to one device and its lifecycle.
type PushNotification struct {
	ID                string
	UserID            string
	DeviceTokenID     string
	DeviceToken       string
	Platform          Platform
	Title             string
	Body              string
	Data              map[string]string
	ImageURL          string
	Sound             string
	Badge             *int
	ProviderMessageID string
	Delivery
}
