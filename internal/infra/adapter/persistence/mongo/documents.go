package mongo

import (
	"time"

	"notification-dispatch/internal/domain/entity"
)

const (
	emailCollection  = "email_notifications"
	pushCollection   = "push_notifications"
	deviceCollection = "device_tokens"
)

type deliveryDoc struct {
	Status           string     `bson:"status"`
	ProviderType     string     `bson:"providerType,omitempty"`
	RetryCount       int        `bson:"retryCount"`
	ErrorMessage     string     `bson:"errorMessage,omitempty"`
	ProcessingTimeMs int64      `bson:"processingTimeMs"`
	CreatedAt        time.Time  `bson:"createdAt"`
	UpdatedAt        time.Time  `bson:"updatedAt"`
	SentAt           *time.Time `bson:"sentAt,omitempty"`
}

type emailDoc struct {
	ID          string      `bson:"_id"`
	EventID     string      `bson:"eventId,omitempty"`
	UserID      string      `bson:"userId,omitempty"`
	From        string      `bson:"from,omitempty"`
	To          []string    `bson:"to"`
	CC          []string    `bson:"cc,omitempty"`
	BCC         []string    `bson:"bcc,omitempty"`
	Subject     string      `bson:"subject"`
	Body        string      `bson:"body"`
	IsHTML      bool        `bson:"isHtml"`
	Priority    int         `bson:"priority"`
	TemplateID  string      `bson:"templateId,omitempty"`
	Attachments []string    `bson:"attachments,omitempty"`
	Lifecycle   deliveryDoc `bson:",inline"`
}

type pushDoc struct {
	ID                string            `bson:"_id"`
	UserID            string            `bson:"userId,omitempty"`
	DeviceTokenID     string            `bson:"deviceTokenId,omitempty"`
	DeviceToken       string            `bson:"deviceToken"`
	Platform          string            `bson:"platform"`
	Title             string            `bson:"title"`
	Body              string            `bson:"body"`
	Data              map[string]string `bson:"data,omitempty"`
	ImageURL          string            `bson:"imageUrl,omitempty"`
	Sound             string            `bson:"sound,omitempty"`
	Badge             *int              `bson:"badge,omitempty"`
	ProviderMessageID string            `bson:"providerMessageId,omitempty"`
	Lifecycle         deliveryDoc       `bson:",inline"`
}

type deviceDoc struct {
	ID          string     `bson:"_id"`
	UserID      string     `bson:"userId"`
	Token       string     `bson:"token"`
	Platform    string     `bson:"platform"`
	DeviceModel string     `bson:"deviceModel,omitempty"`
	OSVersion   string     `bson:"osVersion,omitempty"`
	AppVersion  string     `bson:"appVersion,omitempty"`
	Language    string     `bson:"language,omitempty"`
	Active      bool       `bson:"active"`
	CreatedAt   time.Time  `bson:"createdAt"`
	UpdatedAt   time.Time  `bson:"updatedAt"`
	LastUsedAt  *time.Time `bson:"lastUsedAt,omitempty"`
}

func toDeliveryDoc(d entity.Delivery) deliveryDoc {
	return deliveryDoc{
		Status:           string(d.Status),
		ProviderType:     string(d.ProviderType),
		RetryCount:       d.RetryCount,
		ErrorMessage:     d.ErrorMessage,
		ProcessingTimeMs: d.ProcessingTime.Milliseconds(),
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
		SentAt:           utcPtr(d.SentAt),
	}
}

func (d deliveryDoc) toEntity() entity.Delivery {
	return entity.Delivery{
		Status:         entity.Status(d.Status),
		ProviderType:   entity.ProviderType(d.ProviderType),
		RetryCount:     d.RetryCount,
		ErrorMessage:   d.ErrorMessage,
		ProcessingTime: time.Duration(d.ProcessingTimeMs) * time.Millisecond,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
		SentAt:         utcPtr(d.SentAt),
	}
}

func toEmailDoc(n *entity.EmailNotification) emailDoc {
	return emailDoc{
		ID:          n.ID,
		EventID:     n.EventID,
		UserID:      n.UserID,
		From:        n.From,
		To:          n.To,
		CC:          n.CC,
		BCC:         n.BCC,
		Subject:     n.Subject,
		Body:        n.Body,
		IsHTML:      n.IsHTML,
		Priority:    int(n.Priority),
		TemplateID:  n.TemplateID,
		Attachments: n.Attachments,
		Lifecycle:   toDeliveryDoc(n.Delivery),
	}
}

func (d emailDoc) toEntity() *entity.EmailNotification {
	return &entity.EmailNotification{
		ID:          d.ID,
		EventID:     d.EventID,
		UserID:      d.UserID,
		From:        d.From,
		To:          d.To,
		CC:          d.CC,
		BCC:         d.BCC,
		Subject:     d.Subject,
		Body:        d.Body,
		IsHTML:      d.IsHTML,
		Priority:    entity.EmailPriority(d.Priority),
		TemplateID:  d.TemplateID,
		Attachments: d.Attachments,
		Delivery:    d.Lifecycle.toEntity(),
	}
}

func toPushDoc(n *entity.PushNotification) pushDoc {
	return pushDoc{
		ID:                n.ID,
		UserID:            n.UserID,
		DeviceTokenID:     n.DeviceTokenID,
		DeviceToken:       n.DeviceToken,
		Platform:          string(n.Platform),
		Title:             n.Title,
		Body:              n.Body,
		Data:              n.Data,
		ImageURL:          n.ImageURL,
		Sound:             n.Sound,
		Badge:             n.Badge,
		ProviderMessageID: n.ProviderMessageID,
		Lifecycle:         toDeliveryDoc(n.Delivery),
	}
}

func (d pushDoc) toEntity() *entity.PushNotification {
	return &entity.PushNotification{
		ID:                d.ID,
		UserID:            d.UserID,
		DeviceTokenID:     d.DeviceTokenID,
		DeviceToken:       d.DeviceToken,
		Platform:          entity.Platform(d.Platform),
		Title:             d.Title,
		Body:              d.Body,
		Data:              d.Data,
		ImageURL:          d.ImageURL,
		Sound:             d.Sound,
		Badge:             d.Badge,
		ProviderMessageID: d.ProviderMessageID,
		Delivery:          d.Lifecycle.toEntity(),
	}
}

func toDeviceDoc(t *entity.DeviceToken) deviceDoc {
	return deviceDoc{
		ID:          t.ID,
		UserID:      t.UserID,
		Token:       t.Token,
		Platform:    string(t.Platform),
		DeviceModel: t.DeviceModel,
		OSVersion:   t.OSVersion,
		AppVersion:  t.AppVersion,
		Language:    t.Language,
		Active:      t.Active,
		CreatedAt:   t.CreatedAt.UTC(),
		UpdatedAt:   t.UpdatedAt.UTC(),
		LastUsedAt:  utcPtr(t.LastUsedAt),
	}
}

func (d deviceDoc) toEntity() *entity.DeviceToken {
	return &entity.DeviceToken{
		ID:          d.ID,
		UserID:      d.UserID,
		Token:       d.Token,
		Platform:    entity.Platform(d.Platform),
		DeviceModel: d.DeviceModel,
		OSVersion:   d.OSVersion,
		AppVersion:  d.AppVersion,
		Language:    d.Language,
		Active:      d.Active,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
		LastUsedAt:  utcPtr(d.LastUsedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
