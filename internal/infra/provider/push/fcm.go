// Package push implements the FCM, APNs and Web Push providers.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/infra/provider"
	"notification-dispatch/internal/resilience/retry"
)

const (
	defaultFCMURL = "https://fcm.googleapis.com"
	fcmScope      = "https://www.googleapis.com/auth/firebase.messaging"
)

// FCM error codes that mean the registration token must not be used again.
var fcmInvalidTokenCodes = map[string]bool{
	"UNREGISTERED":       true,
	"INVALID_ARGUMENT":   true,
	"SENDER_ID_MISMATCH": true,
}

// FCMConfig holds the Firebase Cloud Messaging HTTP v1 settings.
type FCMConfig struct {
	Enabled         bool          `env:"FCM_ENABLED" envDefault:"false"`
	ProjectID       string        `env:"FCM_PROJECT_ID"`
	CredentialsFile string        `env:"FCM_CREDENTIALS_FILE"`
	BaseURL         string        `env:"FCM_BASE_URL" envDefault:"https://fcm.googleapis.com"`
	DryRun          bool          `env:"FCM_DRY_RUN" envDefault:"false"`
	Timeout         time.Duration `env:"FCM_TIMEOUT" envDefault:"30s"`
	Priority        int           `env:"FCM_PRIORITY" envDefault:"10"`
}

// FCM sends through the FCM HTTP v1 API with OAuth2 service account tokens.
type FCM struct {
	provider.Info
	cfg        FCMConfig
	httpClient *http.Client
}

// NewFCM loads the service account file and returns a provider whose requests carry access tokens.
func NewFCM(ctx context.Context, cfg FCMConfig) (*FCM, error) {
	if cfg.ProjectID == "" || cfg.CredentialsFile == "" {
		return nil, fmt.Errorf("%w: FCM project id and credentials file are required", provider.ErrNotConfigured)
	}
	data, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read FCM credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, fcmScope)
	if err != nil {
		return nil, fmt.Errorf("parse FCM credentials: %w", err)
	}
	return NewFCMWithTokenSource(cfg, creds.TokenSource), nil
}

// NewFCMWithTokenSource builds the provider on an explicit token source.
func NewFCMWithTokenSource(cfg FCMConfig, ts oauth2.TokenSource) *FCM {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultFCMURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = provider.DefaultHTTPTimeout
	}
	return &FCM{
		Info: provider.Info{Kind: entity.ProviderFCM, Rank: cfg.Priority, Enabled: cfg.Enabled},
		cfg:  cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.ReuseTokenSource(nil, ts),
				Base:   otelhttp.NewTransport(http.DefaultTransport),
			},
		},
	}
}

type fcmNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Image string `json:"image,omitempty"`
}

type fcmAndroid struct {
	Priority     string `json:"priority,omitempty"`
	Notification struct {
		Sound string `json:"sound,omitempty"`
		Image string `json:"image,omitempty"`
	} `json:"notification"`
}

type fcmAPNS struct {
	Headers map[string]string `json:"headers,omitempty"`
	Payload struct {
		Aps struct {
			Sound string `json:"sound,omitempty"`
			Badge *int   `json:"badge,omitempty"`
		} `json:"aps"`
	} `json:"payload"`
}

type fcmMessage struct {
	Token        string            `json:"token"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
	Android      *fcmAndroid       `json:"android,omitempty"`
	APNS         *fcmAPNS          `json:"apns,omitempty"`
}

type fcmRequest struct {
	ValidateOnly bool       `json:"validate_only,omitempty"`
	Message      fcmMessage `json:"message"`
}

type fcmErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

// errorCode prefers the FCM-specific code over the generic RPC status.
func (b fcmErrorBody) errorCode() string {
	for _, d := range b.Error.Details {
		if d.ErrorCode != "" {
			return d.ErrorCode
		}
	}
	return b.Error.Status
}

func (p *FCM) request(msg *entity.PushMessage) fcmRequest {
	m := fcmMessage{
		Token:        msg.Token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body, Image: msg.ImageURL},
		Data:         msg.Data,
	}

	android := &fcmAndroid{Priority: "HIGH"}
	android.Notification.Sound = msg.Sound
	android.Notification.Image = msg.ImageURL
	m.Android = android

	apns := &fcmAPNS{Headers: map[string]string{"apns-priority": "10"}}
	apns.Payload.Aps.Sound = msg.Sound
	if apns.Payload.Aps.Sound == "" {
		apns.Payload.Aps.Sound = "default"
	}
	apns.Payload.Aps.Badge = msg.Badge
	m.APNS = apns

	return fcmRequest{ValidateOnly: p.cfg.DryRun, Message: m}
}

func (p *FCM) Send(ctx context.Context, msg *entity.PushMessage) (string, error) {
	body, err := json.Marshal(p.request(msg))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal fcm message: %w", err))
	}

	url := fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimRight(p.cfg.BaseURL, "/"), p.cfg.ProjectID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read fcm response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var ok struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(respBody, &ok); err != nil {
			return "", fmt.Errorf("decode fcm response: %w", err)
		}
		slog.Info("push sent via fcm",
			slog.String("notification_id", msg.NotificationID),
			slog.String("token", provider.MaskToken(msg.Token)),
			slog.String("message_id", ok.Name))
		return ok.Name, nil
	}

	var fcmErr fcmErrorBody
	if json.Unmarshal(respBody, &fcmErr) == nil {
		if code := fcmErr.errorCode(); fcmInvalidTokenCodes[code] {
			return "", &provider.InvalidTokenError{Provider: entity.ProviderFCM, Reason: code}
		}
	}
	return "", provider.StatusError(entity.ProviderFCM, resp.StatusCode, resp.Header, respBody)
}
