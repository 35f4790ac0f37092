package push

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/infra/provider"
	"notification-dispatch/internal/resilience/retry"
)

const (
	apnsProductionURL = "https://api.push.apple.com"
	apnsSandboxURL    = "https://api.sandbox.push.apple.com"

	// Apple rejects provider tokens older than an hour.
	apnsTokenTTL = 50 * time.Minute
)

// APNs reasons that mean the device token is dead or belongs to another app.
var apnsInvalidTokenReasons = map[string]bool{
	"BadDeviceToken":         true,
	"Unregistered":           true,
	"DeviceTokenNotForTopic": true,
}

// APNSConfig holds the token-based APNs settings.
type APNSConfig struct {
	Enabled    bool          `env:"APNS_ENABLED" envDefault:"false"`
	TeamID     string        `env:"APNS_TEAM_ID"`
	KeyID      string        `env:"APNS_KEY_ID"`
	KeyFile    string        `env:"APNS_KEY_FILE"`
	BundleID   string        `env:"APNS_BUNDLE_ID"`
	Production bool          `env:"APNS_PRODUCTION" envDefault:"false"`
	BaseURL    string        `env:"APNS_BASE_URL"`
	Timeout    time.Duration `env:"APNS_TIMEOUT" envDefault:"30s"`
	Priority   int           `env:"APNS_PRIORITY" envDefault:"5"`
}

// APNS sends to Apple devices over HTTP/2 with an ES256 provider token.
type APNS struct {
	provider.Info
	cfg        APNSConfig
	key        *ecdsa.PrivateKey
	httpClient *http.Client
	now        func() time.Time

	mu       sync.Mutex
	token    string
	issuedAt time.Time
}

// NewAPNS reads the .p8 signing key from cfg.KeyFile.
func NewAPNS(cfg APNSConfig) (*APNS, error) {
	if cfg.KeyFile == "" {
		return nil, fmt.Errorf("%w: APNs key file is required", provider.ErrNotConfigured)
	}
	pem, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read APNs key: %w", err)
	}
	key, err := jwt.ParseECPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse APNs key: %w", err)
	}
	transport := &http2.Transport{}
	return NewAPNSWithKey(cfg, key, &http.Client{Transport: otelhttp.NewTransport(transport)})
}

// NewAPNSWithKey builds the provider on an already parsed key and HTTP/2 client.
func NewAPNSWithKey(cfg APNSConfig, key *ecdsa.PrivateKey, client *http.Client) (*APNS, error) {
	if cfg.TeamID == "" || cfg.KeyID == "" || cfg.BundleID == "" {
		return nil, fmt.Errorf("%w: APNs team id, key id and bundle id are required", provider.ErrNotConfigured)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = apnsSandboxURL
		if cfg.Production {
			cfg.BaseURL = apnsProductionURL
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = provider.DefaultHTTPTimeout
	}
	client.Timeout = cfg.Timeout
	return &APNS{
		Info:       provider.Info{Kind: entity.ProviderAPNS, Rank: cfg.Priority, Enabled: cfg.Enabled},
		cfg:        cfg,
		key:        key,
		httpClient: client,
		now:        time.Now,
	}, nil
}

// providerToken returns the cached JWT, signing a new one when it is close to expiry.
func (p *APNS) providerToken() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.token != "" && now.Sub(p.issuedAt) < apnsTokenTTL {
		return p.token, nil
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": p.cfg.TeamID,
		"iat": now.Unix(),
	})
	tok.Header["kid"] = p.cfg.KeyID
	signed, err := tok.SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("sign APNs provider token: %w", err)
	}
	p.token, p.issuedAt = signed, now
	return signed, nil
}

func (p *APNS) resetToken() {
	p.mu.Lock()
	p.token = ""
	p.mu.Unlock()
}

func apnsPayload(msg *entity.PushMessage) map[string]any {
	aps := map[string]any{
		"alert": map[string]string{"title": msg.Title, "body": msg.Body},
		"sound": "default",
	}
	if msg.Sound != "" {
		aps["sound"] = msg.Sound
	}
	if msg.Badge != nil {
		aps["badge"] = *msg.Badge
	}
	payload := map[string]any{}
	for k, v := range msg.Data {
		payload[k] = v
	}
	if msg.ImageURL != "" {
		payload["image-url"] = msg.ImageURL
		aps["mutable-content"] = 1
	}
	payload["aps"] = aps
	return payload
}

func (p *APNS) Send(ctx context.Context, msg *entity.PushMessage) (string, error) {
	body, err := json.Marshal(apnsPayload(msg))
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal apns payload: %w", err))
	}
	token, err := p.providerToken()
	if err != nil {
		return "", retry.Permanent(err)
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/3/device/" + msg.Token
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("authorization", "bearer "+token)
	req.Header.Set("apns-topic", p.cfg.BundleID)
	req.Header.Set("apns-push-type", "alert")
	req.Header.Set("apns-priority", "10")
	req.Header.Set("apns-expiration", strconv.FormatInt(p.now().Add(p.cfg.Timeout).Unix(), 10))
	if msg.NotificationID != "" {
		req.Header.Set("apns-collapse-id", msg.NotificationID)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusOK {
		id := resp.Header.Get("apns-id")
		slog.Info("push sent via apns",
			slog.String("notification_id", msg.NotificationID),
			slog.String("token", provider.MaskToken(msg.Token)),
			slog.String("apns_id", id))
		return id, nil
	}

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var rejection struct {
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(respBody, &rejection)

	switch {
	case apnsInvalidTokenReasons[rejection.Reason]:
		return "", &provider.InvalidTokenError{Provider: entity.ProviderAPNS, Reason: rejection.Reason}
	case rejection.Reason == "ExpiredProviderToken":
		// the next attempt signs a fresh token
		p.resetToken()
		return "", fmt.Errorf("apns: %s", rejection.Reason)
	}
	return "", provider.StatusError(entity.ProviderAPNS, resp.StatusCode, resp.Header, respBody)
}
