package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mrz1836/postmark"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/infra/provider"
	"notification-dispatch/internal/resilience/retry"
)

// PostmarkConfig holds the Postmark API settings.
type PostmarkConfig struct {
	Enabled       bool          `env:"POSTMARK_ENABLED" envDefault:"false"`
	ServerToken   string        `env:"POSTMARK_SERVER_TOKEN"`
	AccountToken  string        `env:"POSTMARK_ACCOUNT_TOKEN"`
	MessageStream string        `env:"POSTMARK_MESSAGE_STREAM" envDefault:"outbound"`
	BaseURL       string        `env:"POSTMARK_BASE_URL"`
	Timeout       time.Duration `env:"POSTMARK_TIMEOUT" envDefault:"30s"`
	Priority      int           `env:"POSTMARK_PRIORITY" envDefault:"3"`
}

// Postmark error codes that describe the recipient or the message rather than the service.
var postmarkPermanentCodes = map[int64]bool{
	300: true, // invalid email request
	406: true, // inactive recipient
	422: true, // invalid JSON
}

// Postmark sends mail through the Postmark transactional API.
type Postmark struct {
	provider.Info
	cfg         PostmarkConfig
	defaultFrom string
	client      *postmark.Client
}

func NewPostmark(cfg PostmarkConfig, defaultFrom string) *Postmark {
	client := postmark.NewClient(cfg.ServerToken, cfg.AccountToken)
	client.HTTPClient = provider.NewHTTPClient(cfg.Timeout)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}
	return &Postmark{
		Info:        provider.Info{Kind: entity.ProviderPostmark, Rank: cfg.Priority, Enabled: cfg.Enabled},
		cfg:         cfg,
		defaultFrom: defaultFrom,
		client:      client,
	}
}

// IsAvailable requires a server token on top of the enabled flag.
func (p *Postmark) IsAvailable() bool {
	return p.Enabled && p.cfg.ServerToken != ""
}

func (p *Postmark) email(msg *entity.EmailMessage) postmark.Email {
	from := msg.From
	if from == "" {
		from = p.defaultFrom
	}
	e := postmark.Email{
		From:          from,
		To:            strings.Join(msg.To, ", "),
		Cc:            strings.Join(msg.CC, ", "),
		Bcc:           strings.Join(msg.BCC, ", "),
		Subject:       msg.Subject,
		Metadata:      map[string]string{"notification_id": msg.NotificationID},
		MessageStream: p.cfg.MessageStream,
		TrackOpens:    msg.IsHTML,
	}
	if msg.IsHTML {
		e.HTMLBody = msg.Body
	} else {
		e.TextBody = msg.Body
	}
	if msg.Priority != 0 {
		e.Headers = []postmark.Header{{Name: "X-Priority", Value: strconv.Itoa(int(msg.Priority))}}
	}
	for _, a := range msg.Attachments {
		e.Attachments = append(e.Attachments, postmark.Attachment{
			Name:        a.Filename,
			Content:     base64.StdEncoding.EncodeToString(a.Content),
			ContentType: a.ContentType,
		})
	}
	return e
}

func (p *Postmark) Send(ctx context.Context, msg *entity.EmailMessage) error {
	resp, err := p.client.SendEmail(ctx, p.email(msg))
	if resp.ErrorCode != 0 {
		apiErr := &provider.HTTPError{
			StatusCode: http.StatusUnprocessableEntity,
			Message:    fmt.Sprintf("postmark error %d: %s", resp.ErrorCode, resp.Message),
		}
		if postmarkPermanentCodes[resp.ErrorCode] {
			return retry.Permanent(apiErr)
		}
		// Other codes (account or server state) may clear up.
		return errors.New(apiErr.Message)
	}
	if err != nil {
		return fmt.Errorf("postmark send: %w", err)
	}

	slog.Info("email sent via postmark",
		slog.String("notification_id", msg.NotificationID),
		slog.String("message_id", resp.MessageID))
	return nil
}
