package delivery

import (
	"time"

	"notification-dispatch/internal/domain/entity"
)

// AttachmentRequest is a file carried inline with an email request.
// Content is base64 encoded on the wire.
type AttachmentRequest struct {
	Filename    string `json:"filename" validate:"required,max=255"`
	ContentType string `json:"contentType,omitempty"`
	Content     []byte `json:"content" validate:"required"`
}

// EmailRequest is the input of both email delivery paths.
type EmailRequest struct {
	EventID     string               `json:"eventId,omitempty" validate:"omitempty,max=128"`
	UserID      string               `json:"userId,omitempty" validate:"omitempty,max=128"`
	From        string               `json:"from,omitempty" validate:"omitempty,email"`
	To          []string             `json:"to" validate:"required,min=1,max=50,dive,email"`
	CC          []string             `json:"cc,omitempty" validate:"omitempty,max=20,dive,email"`
	BCC         []string             `json:"bcc,omitempty" validate:"omitempty,max=50,dive,email"`
	Subject     string               `json:"subject" validate:"required,max=998"`
	Body        string               `json:"body" validate:"required,max=512000"`
	IsHTML      bool                 `json:"isHtml"`
	Priority    entity.EmailPriority `json:"priority,omitempty" validate:"omitempty,min=1,max=5"`
	TemplateID  string               `json:"templateId,omitempty"`
	Attachments []AttachmentRequest  `json:"attachments,omitempty" validate:"omitempty,max=10,dive"`
}

// Validate checks the request against the accepted limits.
func (r *EmailRequest) Validate() error {
	return entity.ValidateStruct(r)
}

func (r *EmailRequest) attachments() []entity.Attachment {
	if len(r.Attachments) == 0 {
		return nil
	}
	out := make([]entity.Attachment, 0, len(r.Attachments))
	for _, a := range r.Attachments {
		contentType := a.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		out = append(out, entity.Attachment{Filename: a.Filename, ContentType: contentType, Content: a.Content})
	}
	return out
}

func (r *EmailRequest) newNotification(id string, status entity.Status, now time.Time) *entity.EmailNotification {
	priority := r.Priority
	if priority == 0 {
		priority = entity.PriorityNormal
	}
	var names []string
	for _, a := range r.Attachments {
		names = append(names, a.Filename)
	}
	return &entity.EmailNotification{
		ID:          id,
		EventID:     r.EventID,
		UserID:      r.UserID,
		From:        r.From,
		To:          r.To,
		CC:          r.CC,
		BCC:         r.BCC,
		Subject:     r.Subject,
		Body:        r.Body,
		IsHTML:      r.IsHTML,
		Priority:    priority,
		TemplateID:  r.TemplateID,
		Attachments: names,
		Delivery:    entity.NewDelivery(status, now),
	}
}

// PushRequest is the input of both push delivery paths.
// DeviceTokenID and Platform are resolved from the device registry when the
// token is known.
type PushRequest struct {
	UserID        string            `json:"userId,omitempty" validate:"omitempty,max=128"`
	DeviceToken   string            `json:"deviceToken,omitempty" validate:"omitempty,max=4096"`
	Platform      entity.Platform   `json:"platform,omitempty" validate:"omitempty,oneof=IOS ANDROID WEB"`
	Title         string            `json:"title" validate:"required,max=65"`
	Body          string            `json:"body" validate:"required,max=240"`
	Data          map[string]string `json:"data,omitempty"`
	ImageURL      string            `json:"imageUrl,omitempty" validate:"omitempty,url"`
	Sound         string            `json:"sound,omitempty" validate:"omitempty,max=64"`
	Badge         *int              `json:"badge,omitempty" validate:"omitempty,min=0"`
	DeviceTokenID string            `json:"-"`
}

// maxPushDataBytes bounds the combined size of the data map keys and values.
const maxPushDataBytes = 4096

// Validate checks the request against the accepted limits.
func (r *PushRequest) Validate() error {
	if err := entity.ValidateStruct(r); err != nil {
		return err
	}
	size := 0
	for k, v := range r.Data {
		size += len(k) + len(v)
	}
	if size > maxPushDataBytes {
		return &entity.ValidationError{Field: "data", Message: "must be at most 4096 bytes"}
	}
	return nil
}

func (r *PushRequest) newNotification(id string, status entity.Status, now time.Time) *entity.PushNotification {
	return &entity.PushNotification{
		ID:            id,
		UserID:        r.UserID,
		DeviceTokenID: r.DeviceTokenID,
		DeviceToken:   r.DeviceToken,
		Platform:      r.Platform,
		Title:         r.Title,
		Body:          r.Body,
		Data:          r.Data,
		ImageURL:      r.ImageURL,
		Sound:         r.Sound,
		Badge:         r.Badge,
		Delivery:      entity.NewDelivery(status, now),
	}
}
