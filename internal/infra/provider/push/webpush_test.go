package push

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/hkdf"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/infra/provider"
)

type browser struct {
	key  *ecdh.PrivateKey
	auth []byte
}

func newBrowser(t *testing.T) *browser {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)
	return &browser{key: key, auth: auth}
}

func (b *browser) subscription(endpoint string) string {
	return fmt.Sprintf(`{"endpoint":%q,"keys":{"p256dh":%q,"auth":%q}}`,
		endpoint,
		base64.RawURLEncoding.EncodeToString(b.key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(b.auth))
}

// decrypt reverses the aes128gcm coding the way a user agent does.
func (b *browser) decrypt(t *testing.T, body []byte) []byte {
	t.Helper()
	salt := body[:16]
	assert.Equal(t, uint32(recordSize), binary.BigEndian.Uint32(body[16:20]))
	idLen := int(body[20])
	asPublic := body[21 : 21+idLen]
	ciphertext := body[21+idLen:]

	asKey, err := ecdh.P256().NewPublicKey(asPublic)
	require.NoError(t, err)
	shared, err := b.key.ECDH(asKey)
	require.NoError(t, err)

	keyInfo := append(append([]byte("WebPush: info\x00"), b.key.PublicKey().Bytes()...), asPublic...)
	ikm := read(t, hkdf.New(sha256.New, shared, b.auth, keyInfo), 32)
	cek := read(t, hkdf.New(sha256.New, ikm, salt, []byte("Content-Encoding: aes128gcm\x00")), 16)
	nonce := read(t, hkdf.New(sha256.New, ikm, salt, []byte("Content-Encoding: nonce\x00")), 12)

	block, err := aes.NewCipher(cek)
	require.NoError(t, err)
	gcm, err := cipher.NewGCM(block)
	require.NoError(t, err)
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	require.NoError(t, err)
	require.Equal(t, byte(0x02), plain[len(plain)-1])
	return plain[:len(plain)-1]
}

func read(t *testing.T, r io.Reader, n int) []byte {
	t.Helper()
	out := make([]byte, n)
	_, err := io.ReadFull(r, out)
	require.NoError(t, err)
	return out
}

// newLocalWebPush accepts loopback endpoints so tests can target httptest servers.
func newLocalWebPush(t *testing.T, cfg WebPushConfig) *WebPush {
	t.Helper()
	p, err := NewWebPush(cfg)
	require.NoError(t, err)
	p.parse = entity.DecodeWebSubscription
	return p
}

func newVAPIDKey(t *testing.T) string {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(key.Bytes())
}

func TestWebPush_Send(t *testing.T) {
	b := newBrowser(t)
	var (
		body    []byte
		headers http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Location", "https://push.example/msg/1")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	p := newLocalWebPush(t, WebPushConfig{Enabled: true, VAPIDPrivateKey: newVAPIDKey(t), Subject: "mailto:ops@example.com", Priority: 3})

	id, err := p.Send(context.Background(), &entity.PushMessage{
		Token: b.subscription(srv.URL + "/push/abc"),
		Title: "Hello",
		Body:  "Browser",
		Data:  map[string]string{"k": "v"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://push.example/msg/1", id)

	assert.Equal(t, "aes128gcm", headers.Get("Content-Encoding"))
	assert.Equal(t, "86400", headers.Get("TTL"))

	var payload struct {
		Notification map[string]any    `json:"notification"`
		Data         map[string]string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(b.decrypt(t, body), &payload))
	assert.Equal(t, "Hello", payload.Notification["title"])
	assert.Equal(t, "v", payload.Data["k"])

	auth := headers.Get("Authorization")
	require.True(t, strings.HasPrefix(auth, "vapid t="))
	raw := strings.TrimPrefix(strings.Split(auth, ",")[0], "vapid t=")
	tok, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return &p.signingKey.PublicKey, nil })
	require.NoError(t, err)
	aud, _ := tok.Claims.GetAudience()
	assert.Equal(t, jwt.ClaimStrings{srv.URL}, aud)
}

func TestWebPush_ExpiredSubscription(t *testing.T) {
	b := newBrowser(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer srv.Close()

	p := newLocalWebPush(t, WebPushConfig{Enabled: true, VAPIDPrivateKey: newVAPIDKey(t), Subject: "mailto:ops@example.com"})

	_, err := p.Send(context.Background(), &entity.PushMessage{Token: b.subscription(srv.URL), Title: "x"})
	var invalid *provider.InvalidTokenError
	assert.True(t, errors.As(err, &invalid))
}

func TestWebPush_PrivateEndpointRejected(t *testing.T) {
	b := newBrowser(t)
	p, err := NewWebPush(WebPushConfig{Enabled: true, VAPIDPrivateKey: newVAPIDKey(t), Subject: "mailto:ops@example.com"})
	require.NoError(t, err)

	_, err = p.Send(context.Background(), &entity.PushMessage{Token: b.subscription("http://127.0.0.1:9/push")})
	var invalid *provider.InvalidTokenError
	assert.True(t, errors.As(err, &invalid))
}

func TestWebPush_MalformedSubscription(t *testing.T) {
	p, err := NewWebPush(WebPushConfig{Enabled: true, VAPIDPrivateKey: newVAPIDKey(t), Subject: "mailto:ops@example.com"})
	require.NoError(t, err)

	_, err = p.Send(context.Background(), &entity.PushMessage{Token: "not-json"})
	var invalid *provider.InvalidTokenError
	assert.True(t, errors.As(err, &invalid))
}

func TestNewWebPush_RejectsMismatchedPublicKey(t *testing.T) {
	_, err := NewWebPush(WebPushConfig{
		VAPIDPrivateKey: newVAPIDKey(t),
		VAPIDPublicKey:  "BAAA",
		Subject:         "mailto:ops@example.com",
	})
	assert.Error(t, err)
}
