package entity

// Attachment is a file sent along with an email.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// EmailMessage is what an email provider receives for one send.
type EmailMessage struct {
	NotificationID string
	From           string
	To             []string
	CC             []string
	BCC            []string
	Subject        string
	Body           string
	IsHTML         bool
	Priority       EmailPriority
	Attachments    []Attachment
}

// NewEmailMessage builds the provider payload for n.
func NewEmailMessage(n *EmailNotification, attachments []Attachment) *EmailMessage {
	return &EmailMessage{
		NotificationID: n.ID,
		From:           n.From,
		To:             n.To,
		CC:             n.CC,
		BCC:            n.BCC,
		Subject:        n.Subject,
		Body:           n.Body,
		IsHTML:         n.IsHTML,
		Priority:       n.Priority,
		Attachments:    attachments,
	}
}

// PushMessage is what a push provider receives for one device.
type PushMessage struct {
	NotificationID string
	Token          string
	Platform       Platform
	Title          string
	Body           string
	Data           map[string]string
	ImageURL       string
	Sound          string
	Badge          *int
}

// NewPushMessage builds the provider payload for n.
func NewPushMessage(n *PushNotification) *PushMessage {
	return &PushMessage{
		NotificationID: n.ID,
		Token:          n.DeviceToken,
		Platform:       n.Platform,
		Title:          n.Title,
		Body:           n.Body,
		Data:           n.Data,
		ImageURL:       n.ImageURL,
		Sound:          n.Sound,
		Badge:          n.Badge,
	}
}
