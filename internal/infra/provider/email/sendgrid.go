package email

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/infra/provider"
	"notification-dispatch/internal/resilience/retry"
)

const defaultSendGridURL = "https://api.sendgrid.com"

// SendGridConfig holds the SendGrid v3 API settings.
type SendGridConfig struct {
	Enabled  bool          `env:"SENDGRID_ENABLED" envDefault:"false"`
	APIKey   string        `env:"SENDGRID_API_KEY"`
	BaseURL  string        `env:"SENDGRID_BASE_URL" envDefault:"https://api.sendgrid.com"`
	Timeout  time.Duration `env:"SENDGRID_TIMEOUT" envDefault:"30s"`
	Priority int           `env:"SENDGRID_PRIORITY" envDefault:"5"`
}

// SendGrid sends mail through the SendGrid v3 mail/send endpoint.
type SendGrid struct {
	provider.Info
	cfg         SendGridConfig
	defaultFrom string
	httpClient  *http.Client
}

func NewSendGrid(cfg SendGridConfig, defaultFrom string) *SendGrid {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultSendGridURL
	}
	return &SendGrid{
		Info:        provider.Info{Kind: entity.ProviderSendGrid, Rank: cfg.Priority, Enabled: cfg.Enabled},
		cfg:         cfg,
		defaultFrom: defaultFrom,
		httpClient:  provider.NewHTTPClient(cfg.Timeout),
	}
}

// IsAvailable requires an API key on top of the enabled flag.
func (p *SendGrid) IsAvailable() bool {
	return p.Enabled && p.cfg.APIKey != ""
}

type sendGridAddress struct {
	Email string `json:"email"`
}

type sendGridPersonalization struct {
	To  []sendGridAddress `json:"to"`
	CC  []sendGridAddress `json:"cc,omitempty"`
	BCC []sendGridAddress `json:"bcc,omitempty"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridAttachment struct {
	Content     string `json:"content"`
	Filename    string `json:"filename"`
	Type        string `json:"type,omitempty"`
	Disposition string `json:"disposition"`
}

type sendGridPayload struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
	Attachments      []sendGridAttachment      `json:"attachments,omitempty"`
	Headers          map[string]string         `json:"headers,omitempty"`
	CustomArgs       map[string]string         `json:"custom_args,omitempty"`
}

func addresses(list []string) []sendGridAddress {
	if len(list) == 0 {
		return nil
	}
	out := make([]sendGridAddress, len(list))
	for i, a := range list {
		out[i] = sendGridAddress{Email: a}
	}
	return out
}

func (p *SendGrid) payload(msg *entity.EmailMessage) sendGridPayload {
	from := msg.From
	if from == "" {
		from = p.defaultFrom
	}
	contentType := "text/plain"
	if msg.IsHTML {
		contentType = "text/html"
	}

	pl := sendGridPayload{
		Personalizations: []sendGridPersonalization{{
			To:  addresses(msg.To),
			CC:  addresses(msg.CC),
			BCC: addresses(msg.BCC),
		}},
		From:       sendGridAddress{Email: from},
		Subject:    msg.Subject,
		Content:    []sendGridContent{{Type: contentType, Value: msg.Body}},
		CustomArgs: map[string]string{"notification_id": msg.NotificationID},
	}
	if msg.Priority != 0 {
		pl.Headers = map[string]string{"X-Priority": strconv.Itoa(int(msg.Priority))}
	}
	for _, a := range msg.Attachments {
		pl.Attachments = append(pl.Attachments, sendGridAttachment{
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			Filename:    a.Filename,
			Type:        a.ContentType,
			Disposition: "attachment",
		})
	}
	return pl
}

func (p *SendGrid) Send(ctx context.Context, msg *entity.EmailMessage) error {
	body, err := json.Marshal(p.payload(msg))
	if err != nil {
		return retry.Permanent(fmt.Errorf("marshal sendgrid payload: %w", err))
	}

	url := strings.TrimRight(p.cfg.BaseURL, "/") + "/v3/mail/send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create http request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := provider.ReadError(entity.ProviderSendGrid, resp); err != nil {
		return err
	}

	slog.Info("email sent via sendgrid",
		slog.String("notification_id", msg.NotificationID),
		slog.String("message_id", resp.Header.Get("X-Message-Id")))
	return nil
}
