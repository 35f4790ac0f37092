package push

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/infra/provider"
	"notification-dispatch/internal/resilience/retry"
)

const (
	// recordSize is the aes128gcm record size advertised in the content coding header.
	recordSize = 4096

	// maxWebPushPayload keeps the encrypted body, header included, within 4096 bytes.
	maxWebPushPayload = recordSize - 16 - 1 - 86

	vapidTokenTTL = 12 * time.Hour
)

// WebPushConfig holds the VAPID settings.
type WebPushConfig struct {
	Enabled         bool          `env:"WEBPUSH_ENABLED" envDefault:"false"`
	VAPIDPublicKey  string        `env:"WEBPUSH_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `env:"WEBPUSH_VAPID_PRIVATE_KEY"`
	Subject         string        `env:"WEBPUSH_SUBJECT"`
	TTL             time.Duration `env:"WEBPUSH_TTL" envDefault:"24h"`
	Timeout         time.Duration `env:"WEBPUSH_TIMEOUT" envDefault:"30s"`
	Priority        int           `env:"WEBPUSH_PRIORITY" envDefault:"3"`
}

// WebPush delivers to browser push services with VAPID authentication
// and aes128gcm payload encryption.
type WebPush struct {
	provider.Info
	cfg        WebPushConfig
	signingKey *ecdsa.PrivateKey
	publicKey  string
	httpClient *http.Client
	now        func() time.Time
	parse      func(token string) (*entity.WebSubscription, error)
}

// NewWebPush decodes the base64url VAPID key pair.
func NewWebPush(cfg WebPushConfig) (*WebPush, error) {
	if cfg.VAPIDPrivateKey == "" || cfg.Subject == "" {
		return nil, fmt.Errorf("%w: VAPID private key and subject are required", provider.ErrNotConfigured)
	}
	key, pub, err := parseVAPIDKey(cfg.VAPIDPrivateKey)
	if err != nil {
		return nil, err
	}
	if cfg.VAPIDPublicKey != "" && cfg.VAPIDPublicKey != pub {
		return nil, errors.New("VAPID public key does not match the private key")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}
	return &WebPush{
		Info:       provider.Info{Kind: entity.ProviderWebPush, Rank: cfg.Priority, Enabled: cfg.Enabled},
		cfg:        cfg,
		signingKey: key,
		publicKey:  pub,
		httpClient: provider.NewHTTPClient(cfg.Timeout),
		now:        time.Now,
		parse:      entity.ParseWebSubscription,
	}, nil
}

// parseVAPIDKey turns the raw 32-byte scalar into a signing key and its base64url public key.
func parseVAPIDKey(encoded string) (*ecdsa.PrivateKey, string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("decode VAPID private key: %w", err)
	}
	priv, err := ecdh.P256().NewPrivateKey(raw)
	if err != nil {
		return nil, "", fmt.Errorf("invalid VAPID private key: %w", err)
	}
	pub := priv.PublicKey().Bytes()
	key := &ecdsa.PrivateKey{
		PublicKey: ecdsa.PublicKey{
			Curve: elliptic.P256(),
			X:     new(big.Int).SetBytes(pub[1:33]),
			Y:     new(big.Int).SetBytes(pub[33:]),
		},
		D: new(big.Int).SetBytes(raw),
	}
	return key, base64.RawURLEncoding.EncodeToString(pub), nil
}

// vapidAuthorization signs a token whose audience is the push service origin.
func (p *WebPush) vapidAuthorization(endpoint string) (string, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"aud": u.Scheme + "://" + u.Host,
		"exp": p.now().Add(vapidTokenTTL).Unix(),
		"sub": p.cfg.Subject,
	})
	signed, err := tok.SignedString(p.signingKey)
	if err != nil {
		return "", fmt.Errorf("sign VAPID token: %w", err)
	}
	return "vapid t=" + signed + ", k=" + p.publicKey, nil
}

func webPushPayload(msg *entity.PushMessage, now time.Time) ([]byte, error) {
	notification := map[string]any{
		"title":     msg.Title,
		"body":      msg.Body,
		"timestamp": now.UnixMilli(),
	}
	if msg.ImageURL != "" {
		notification["icon"] = msg.ImageURL
		notification["image"] = msg.ImageURL
	}
	if msg.Badge != nil {
		notification["badge"] = *msg.Badge
	}
	if msg.Sound == "silent" {
		notification["silent"] = true
	}
	payload := map[string]any{"notification": notification}
	if len(msg.Data) > 0 {
		payload["data"] = msg.Data
	}
	return json.Marshal(payload)
}

// encrypt applies the aes128gcm content coding for a single record.
func encrypt(plaintext []byte, sub *entity.WebSubscription, random io.Reader) ([]byte, error) {
	uaPublic, err := base64.RawURLEncoding.DecodeString(trimPadding(sub.Keys.P256dh))
	if err != nil {
		return nil, fmt.Errorf("decode p256dh: %w", err)
	}
	authSecret, err := base64.RawURLEncoding.DecodeString(trimPadding(sub.Keys.Auth))
	if err != nil {
		return nil, fmt.Errorf("decode auth secret: %w", err)
	}
	uaKey, err := ecdh.P256().NewPublicKey(uaPublic)
	if err != nil {
		return nil, fmt.Errorf("invalid p256dh: %w", err)
	}

	asKey, err := ecdh.P256().GenerateKey(random)
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral key: %w", err)
	}
	shared, err := asKey.ECDH(uaKey)
	if err != nil {
		return nil, fmt.Errorf("ecdh: %w", err)
	}
	asPublic := asKey.PublicKey().Bytes()

	salt := make([]byte, 16)
	if _, err := io.ReadFull(random, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	keyInfo := append(append([]byte("WebPush: info\x00"), uaPublic...), asPublic...)
	ikm, err := expand(hkdf.Extract(sha256.New, shared, authSecret), keyInfo, 32)
	if err != nil {
		return nil, err
	}
	prk := hkdf.Extract(sha256.New, ikm, salt)
	cek, err := expand(prk, []byte("Content-Encoding: aes128gcm\x00"), 16)
	if err != nil {
		return nil, err
	}
	nonce, err := expand(prk, []byte("Content-Encoding: nonce\x00"), 12)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(cek)
	if err != nil {
		return nil, fmt.Errorf("aes: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("gcm: %w", err)
	}

	// 0x02 delimits the last (and only) record
	record := append(append([]byte{}, plaintext...), 0x02)

	header := make([]byte, 0, 16+4+1+len(asPublic))
	header = append(header, salt...)
	header = binary.BigEndian.AppendUint32(header, recordSize)
	header = append(header, byte(len(asPublic)))
	header = append(header, asPublic...)

	return gcm.Seal(header, nonce, record, nil), nil
}

func expand(prk, info []byte, n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), out); err != nil {
		return nil, fmt.Errorf("hkdf expand: %w", err)
	}
	return out, nil
}

// trimPadding accepts keys sent with standard base64 padding.
func trimPadding(s string) string {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return s
}

func (p *WebPush) Send(ctx context.Context, msg *entity.PushMessage) (string, error) {
	sub, err := p.parse(msg.Token)
	if err != nil {
		return "", &provider.InvalidTokenError{Provider: entity.ProviderWebPush, Reason: err.Error()}
	}

	payload, err := webPushPayload(msg, p.now())
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("marshal web push payload: %w", err))
	}
	if len(payload) > maxWebPushPayload {
		return "", retry.Permanent(fmt.Errorf("web push payload is %d bytes, limit %d", len(payload), maxWebPushPayload))
	}
	body, err := encrypt(payload, sub, rand.Reader)
	if err != nil {
		return "", retry.Permanent(fmt.Errorf("encrypt web push payload: %w", err))
	}
	auth, err := p.vapidAuthorization(sub.Endpoint)
	if err != nil {
		return "", retry.Permanent(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Content-Encoding", "aes128gcm")
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("TTL", strconv.Itoa(int(p.cfg.TTL.Seconds())))
	req.Header.Set("Urgency", "normal")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		id := resp.Header.Get("Location")
		slog.Info("push sent via web push",
			slog.String("notification_id", msg.NotificationID),
			slog.Int("status", resp.StatusCode))
		return id, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &provider.InvalidTokenError{
			Provider: entity.ProviderWebPush,
			Reason:   "subscription expired (" + strconv.Itoa(resp.StatusCode) + ")",
		}
	}
	return "", provider.ReadError(entity.ProviderWebPush, resp)
}
