package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/infra/provider"
	"notification-dispatch/internal/resilience/retry"
)

// SMTPConfig holds the relay settings for the SMTP provider.
type SMTPConfig struct {
	Enabled  bool   `env:"SMTP_ENABLED" envDefault:"true"`
	Host     string `env:"SMTP_HOST" envDefault:"localhost"`
	Port     int    `env:"SMTP_PORT" envDefault:"587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	// StartTLS upgrades the connection when the server offers it.
	StartTLS bool `env:"SMTP_STARTTLS" envDefault:"true"`
	Priority int  `env:"SMTP_PRIORITY" envDefault:"10"`
}

// SMTP sends mail through an SMTP relay.
type SMTP struct {
	provider.Info
	cfg         SMTPConfig
	defaultFrom string
	now         func() time.Time
}

// NewSMTP returns an SMTP provider. defaultFrom is used when a message has no sender.
func NewSMTP(cfg SMTPConfig, defaultFrom string) (*SMTP, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, fmt.Errorf("%w: SMTP host and port are required", provider.ErrNotConfigured)
	}
	return &SMTP{
		Info:        provider.Info{Kind: entity.ProviderSMTP, Rank: cfg.Priority, Enabled: cfg.Enabled},
		cfg:         cfg,
		defaultFrom: defaultFrom,
		now:         time.Now,
	}, nil
}

func (p *SMTP) Send(ctx context.Context, msg *entity.EmailMessage) error {
	from := msg.From
	if from == "" {
		from = p.defaultFrom
	}
	raw, err := buildMIME(msg, from, p.now())
	if err != nil {
		return retry.Permanent(fmt.Errorf("build message: %w", err))
	}

	addr := net.JoinHostPort(p.cfg.Host, strconv.Itoa(p.cfg.Port))
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, p.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer func() { _ = c.Close() }()

	if p.cfg.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(&tls.Config{ServerName: p.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
				return fmt.Errorf("smtp starttls: %w", err)
			}
		}
	}
	if p.cfg.Username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", p.cfg.Username, p.cfg.Password, p.cfg.Host)); err != nil {
				return classifySMTP("smtp auth", err)
			}
		}
	}

	if err := c.Mail(from); err != nil {
		return classifySMTP("smtp MAIL FROM", err)
	}
	recipients := make([]string, 0, len(msg.To)+len(msg.CC)+len(msg.BCC))
	recipients = append(append(append(recipients, msg.To...), msg.CC...), msg.BCC...)
	for _, rcpt := range recipients {
		if err := c.Rcpt(rcpt); err != nil {
			return classifySMTP("smtp RCPT TO "+rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return classifySMTP("smtp DATA", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("smtp write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return classifySMTP("smtp end DATA", err)
	}
	if err := c.Quit(); err != nil {
		slog.Debug("smtp quit failed", slog.Any("error", err))
	}

	slog.Info("email sent via smtp",
		slog.String("notification_id", msg.NotificationID),
		slog.Int("recipients", len(recipients)))
	return nil
}

// classifySMTP marks 5xx replies as permanent. 4xx replies and I/O errors stay retryable.
func classifySMTP(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) && tpErr.Code >= 500 {
		return retry.Permanent(wrapped)
	}
	return wrapped
}
