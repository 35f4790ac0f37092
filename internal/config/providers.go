package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"notification-dispatch/internal/domain/entity"
)

// ProviderFile is the optional YAML file named by PROVIDERS_CONFIG. Values
// present in the file override the environment.
//
//	email:
//	  active: SENDGRID
//	  providers:
//	    SENDGRID: {enabled: true, priority: 10, timeout: 15s, rps: 50, burst: 10}
//	push:
//	  active: FCM
//	  providers:
//	    APNS: {enabled: false}
type ProviderFile struct {
	Email ChannelProviders `yaml:"email"`
	Push  ChannelProviders `yaml:"push"`
}

// ChannelProviders configures the providers of one channel.
type ChannelProviders struct {
	Active    string                      `yaml:"active"`
	Providers map[string]ProviderSettings `yaml:"providers"`
}

// ProviderSettings overrides one provider. Nil and zero fields keep the
// environment value.
type ProviderSettings struct {
	Enabled  *bool         `yaml:"enabled"`
	Priority *int          `yaml:"priority"`
	Timeout  time.Duration `yaml:"timeout"`
	RPS      float64       `yaml:"rps"`
	Burst    int           `yaml:"burst"`
}

// LoadProviderFile reads and validates the provider file.
// The path comes from the process environment, not from request input.
func LoadProviderFile(path string) (*ProviderFile, error) {
	// #nosec G304 -- operator supplied path
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read provider config: %w", err)
	}

	var f ProviderFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse provider config: %w", err)
	}

	if err := validateProviderFile(&f); err != nil {
		return nil, fmt.Errorf("provider config validation failed: %w", err)
	}
	return &f, nil
}

func validateProviderFile(f *ProviderFile) error {
	if err := validateChannel(entity.ChannelEmail, f.Email); err != nil {
		return err
	}
	return validateChannel(entity.ChannelPush, f.Push)
}

func validateChannel(ch entity.Channel, c ChannelProviders) error {
	if c.Active != "" && !isChannelProvider(ch, entity.ProviderType(c.Active)) {
		return fmt.Errorf("%s active provider %q is not a %s provider", ch, c.Active, ch)
	}
	for name, s := range c.Providers {
		if !isChannelProvider(ch, entity.ProviderType(name)) {
			return fmt.Errorf("%s provider %q is unknown", ch, name)
		}
		if s.Priority != nil && *s.Priority < 0 {
			return fmt.Errorf("%s priority must not be negative", name)
		}
		if s.Timeout < 0 {
			return fmt.Errorf("%s timeout must not be negative", name)
		}
		if s.RPS < 0 || s.Burst < 0 {
			return fmt.Errorf("%s rps and burst must not be negative", name)
		}
	}
	return nil
}

func isChannelProvider(ch entity.Channel, p entity.ProviderType) bool {
	switch p {
	case entity.ProviderSMTP, entity.ProviderSendGrid, entity.ProviderPostmark,
		entity.ProviderFCM, entity.ProviderAPNS, entity.ProviderWebPush:
		return p.Channel() == ch
	}
	return false
}
