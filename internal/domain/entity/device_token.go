package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// DeviceToken is a push registration for one device. Token is unique across users.
type DeviceToken struct {
	ID          string
	UserID      string
	Token       string
	Platform    Platform
	DeviceModel string
	OSVersion   string
	AppVersion  string
	Language    string
	Active      bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastUsedAt  *time.Time
}

// Deactivate marks the token unusable for future sends.
func (t *DeviceToken) Deactivate(now time.Time) {
	t.Active = false
	t.UpdatedAt = now
}

// Touch records a successful send to the device.
func (t *DeviceToken) Touch(now time.Time) {
	t.LastUsedAt = &now
}

// WebSubscription is the browser PushSubscription stored as the token of a WEB device.
type WebSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// ParseWebSubscription decodes the JSON subscription a browser hands to the application
// and rejects endpoints outside the public internet.
func ParseWebSubscription(token string) (*WebSubscription, error) {
	sub, err := DecodeWebSubscription(token)
	if err != nil {
		return nil, err
	}
	if err := ValidateURL(sub.Endpoint); err != nil {
		return nil, err
	}
	return sub, nil
}

// DecodeWebSubscription decodes the subscription and checks that endpoint and keys are present.
func DecodeWebSubscription(token string) (*WebSubscription, error) {
	var sub WebSubscription
	if err := json.Unmarshal([]byte(token), &sub); err != nil {
		return nil, &ValidationError{Field: "deviceToken", Message: fmt.Sprintf("invalid web push subscription: %v", err)}
	}
	if sub.Endpoint == "" || sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return nil, &ValidationError{Field: "deviceToken", Message: "web push subscription must include endpoint and keys"}
	}
	return &sub, nil
}
