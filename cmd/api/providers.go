package main

import (
	"context"
	"fmt"
	"log/slog"

	"notification-dispatch/internal/config"
	"notification-dispatch/internal/domain/entity"
	"notification-dispatch/internal/infra/provider"
	"notification-dispatch/internal/infra/provider/email"
	"notification-dispatch/internal/infra/provider/push"
	"notification-dispatch/internal/usecase/selector"
)

// emailProviders constructs every enabled email provider. A provider that is
// enabled but cannot be built fails startup.
func emailProviders(cfg *config.Config) ([]selector.EmailProvider, error) {
	var out []selector.EmailProvider
	add := func(p selector.EmailProvider) {
		out = append(out, provider.ThrottleEmail(p, throttle(cfg, p.Type())))
	}

	if cfg.Email.SMTP.Enabled {
		p, err := email.NewSMTP(cfg.Email.SMTP, cfg.Email.DefaultFrom)
		if err != nil {
			return nil, fmt.Errorf("smtp provider: %w", err)
		}
		add(p)
	}
	if cfg.Email.SendGrid.Enabled {
		add(email.NewSendGrid(cfg.Email.SendGrid, cfg.Email.DefaultFrom))
	}
	if cfg.Email.Postmark.Enabled {
		add(email.NewPostmark(cfg.Email.Postmark, cfg.Email.DefaultFrom))
	}
	return out, nil
}

// pushProviders constructs every enabled push provider.
func pushProviders(ctx context.Context, cfg *config.Config) ([]selector.PushProvider, error) {
	var out []selector.PushProvider
	add := func(p selector.PushProvider) {
		out = append(out, provider.ThrottlePush(p, throttle(cfg, p.Type())))
	}

	if cfg.Push.FCM.Enabled {
		p, err := push.NewFCM(ctx, cfg.Push.FCM)
		if err != nil {
			return nil, fmt.Errorf("fcm provider: %w", err)
		}
		add(p)
	}
	if cfg.Push.APNS.Enabled {
		p, err := push.NewAPNS(cfg.Push.APNS)
		if err != nil {
			return nil, fmt.Errorf("apns provider: %w", err)
		}
		add(p)
	}
	if cfg.Push.WebPush.Enabled {
		p, err := push.NewWebPush(cfg.Push.WebPush)
		if err != nil {
			return nil, fmt.Errorf("web push provider: %w", err)
		}
		add(p)
	}
	return out, nil
}

func throttle(cfg *config.Config, t entity.ProviderType) *provider.Throttle {
	rps, burst := cfg.Throttle(t)
	if rps > 0 {
		slog.Info("provider throttled",
			slog.String("provider", t.String()),
			slog.Float64("rps", rps),
			slog.Int("burst", burst))
	}
	return provider.NewThrottle(rps, burst)
}

// selectors builds both provider registries and warns when an active
// provider is not among the enabled ones.
func selectors(ctx context.Context, cfg *config.Config) (*selector.EmailSelector, *selector.PushSelector, error) {
	ep, err := emailProviders(cfg)
	if err != nil {
		return nil, nil, err
	}
	pp, err := pushProviders(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	emailActive := entity.ProviderType(cfg.Email.ActiveProvider)
	pushActive := entity.ProviderType(cfg.Push.ActiveProvider)
	warnUnregistered(emailActive, ep)
	warnUnregistered(pushActive, pp)

	emailSel, err := selector.NewEmailSelector(emailActive, ep...)
	if err != nil {
		return nil, nil, fmt.Errorf("email selector: %w", err)
	}
	pushSel, err := selector.NewPushSelector(pushActive, pp...)
	if err != nil {
		return nil, nil, fmt.Errorf("push selector: %w", err)
	}
	return emailSel, pushSel, nil
}

func warnUnregistered[P selector.Provider](active entity.ProviderType, providers []P) {
	for _, p := range providers {
		if p.Type() == active {
			return
		}
	}
	slog.Warn("active provider is not enabled",
		slog.String("provider", active.String()))
}
