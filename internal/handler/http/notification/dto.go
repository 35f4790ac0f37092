package notification

import (
	"time"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/usecase/orchestrator"
)

// EmailDTO is the API view of an email notification.
type EmailDTO struct {
	ID               string     `json:"id"`
	EventID          string     `json:"eventId,omitempty"`
	UserID           string     `json:"userId,omitempty"`
	To               []string   `json:"to"`
	CC               []string   `json:"cc,omitempty"`
	BCC              []string   `json:"bcc,omitempty"`
	Subject          string     `json:"subject"`
	Attachments      []string   `json:"attachments,omitempty"`
	Status           string     `json:"status"`
	ProviderType     string     `json:"providerType,omitempty"`
	RetryCount       int        `json:"retryCount"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	ProcessingTimeMs int64      `json:"processingTimeMs,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
	SentAt           *time.Time `json:"sentAt,omitempty"`
}

// PushDTO is the API view of a push notification. The raw device token is not echoed.
type PushDTO struct {
	ID                string     `json:"id"`
	UserID            string     `json:"userId,omitempty"`
	DeviceTokenID     string     `json:"deviceTokenId,omitempty"`
	Platform          string     `json:"platform,omitempty"`
	Title             string     `json:"title"`
	Status            string     `json:"status"`
	ProviderType      string     `json:"providerType,omitempty"`
	ProviderMessageID string     `json:"providerMessageId,omitempty"`
	RetryCount        int        `json:"retryCount"`
	ErrorMessage      string     `json:"errorMessage,omitempty"`
	ProcessingTimeMs  int64      `json:"processingTimeMs,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
}

func toEmailDTO(n *entity.EmailNotification) EmailDTO {
	return EmailDTO{
		ID:               n.ID,
		EventID:          n.EventID,
		UserID:           n.UserID,
		To:               n.To,
		CC:               n.CC,
		BCC:              n.BCC,
		Subject:          n.Subject,
		Attachments:      n.Attachments,
		Status:           string(n.Status),
		ProviderType:     string(n.ProviderType),
		RetryCount:       n.RetryCount,
		ErrorMessage:     n.ErrorMessage,
		ProcessingTimeMs: n.ProcessingTime.Milliseconds(),
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
		SentAt:           n.SentAt,
	}
}

func toPushDTO(n *entity.PushNotification) PushDTO {
	return PushDTO{
		ID:                n.ID,
		UserID:            n.UserID,
		DeviceTokenID:     n.DeviceTokenID,
		Platform:          string(n.Platform),
		Title:             n.Title,
		Status:            string(n.Status),
		ProviderType:      string(n.ProviderType),
		ProviderMessageID: n.ProviderMessageID,
		RetryCount:        n.RetryCount,
		ErrorMessage:      n.ErrorMessage,
		ProcessingTimeMs:  n.ProcessingTime.Milliseconds(),
		CreatedAt:         n.CreatedAt,
		UpdatedAt:         n.UpdatedAt,
		SentAt:            n.SentAt,
	}
}

// DuplicateResponse is returned with 409 when an event id was already accepted.
type DuplicateResponse struct {
	Error    string    `json:"error"`
	Code     string    `json:"code"`
	EventID  string    `json:"eventId"`
	Existing *EmailDTO `json:"existing,omitempty"`
}

// BatchResponse summarizes a batch email request.
type BatchResponse struct {
	Total    int                `json:"total"`
	Accepted int                `json:"accepted"`
	Failed   int                `json:"failed"`
	Results  []BatchResultEntry `json:"results"`
}

// BatchResultEntry is the outcome for one email of a batch, in request order.
type BatchResultEntry struct {
	Index          int    `json:"index"`
	NotificationID string `json:"notificationId,omitempty"`
	Status         string `json:"status,omitempty"`
	StatusCheckURL string `json:"statusCheckUrl,omitempty"`
	Error          string `json:"error,omitempty"`
}

// UserPushResponse lists the per-device notifications queued for a user.
type UserPushResponse struct {
	UserID        string                   `json:"userId"`
	DeviceCount   int                      `json:"deviceCount"`
	Notifications []*orchestrator.Accepted `json:"notifications"`
}

// RateLimitStatus is the introspection view of one caller's windows.
type RateLimitStatus struct {
	ServiceID         string `json:"serviceId"`
	Enabled           bool   `json:"enabled"`
	GlobalLimit       int    `json:"globalLimit"`
	GlobalRemaining   int    `json:"globalRemaining"`
	PerServiceEnabled bool   `json:"perServiceEnabled"`
	ServiceLimit      int    `json:"serviceLimit"`
	ServiceRemaining  int    `json:"serviceRemaining"`
	ServiceCount      int    `json:"serviceCurrentCount"`
	WindowSeconds     int    `json:"windowSeconds"`
}
