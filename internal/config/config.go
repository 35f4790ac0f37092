// Package config assembles the API process configuration from the
// environment, an optional .env file and the optional provider YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"notification-dispatch/internal/domain/entity"
	mongostore "notification-dispatch/internal/infra/adapter/persistence/mongo"
	"notification-dispatch/internal/infra/audit"
	"notification-dispatch/internal/infra/batch"
	rediscache "notification-dispatch/internal/infra/cache/redis"
	"notification-dispatch/internal/infra/db"
	"notification-dispatch/internal/infra/provider/email"
	"notification-dispatch/internal/infra/provider/push"
	"notification-dispatch/internal/resilience/circuitbreaker"
	"notification-dispatch/internal/usecase/delivery"
	pkgconfig "notification-dispatch/pkg/config"
	"notification-dispatch/pkg/ratelimit"
)

// Config is the complete API configuration.
type Config struct {
	Version       string  `env:"VERSION" envDefault:"dev"`
	SampleRatio   float64 `env:"OTEL_TRACE_SAMPLE_RATIO" envDefault:"1"`
	ProvidersFile string  `env:"PROVIDERS_CONFIG"`

	HTTP     HTTP
	Redis    rediscache.Config
	Mongo    mongostore.Config
	Postgres db.Config
	Audit    audit.Config
	Breaker  Breaker
	Email    Email
	Push     Push

	Idempotency Idempotency
	// RateLimit is filled by pkg/config.LoadRateLimitConfig.
	RateLimit          ratelimit.Config
	RateLimitKeyPrefix string `env:"RATELIMIT_KEY_PREFIX" envDefault:"ratelimit:notification:"`
	RateLimitStore     RateLimitStore

	// Providers holds per-provider timeout and throttle overrides from ProvidersFile.
	Providers map[entity.ProviderType]ProviderSettings
}

// HTTP configures the API listener.
type HTTP struct {
	Port              int           `env:"PORT" envDefault:"8080"`
	RequestTimeout    time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"60s"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"10s"`
	MaxBodyBytes      int64         `env:"HTTP_MAX_BODY_BYTES" envDefault:"10485760"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Rate limit store backends.
const (
	RateLimitBackendRedis  = "redis"
	RateLimitBackendMemory = "memory"
)

// RateLimitStore selects where admission windows live. The memory backend is
// for single-node deployments; Redis windows are shared by every instance.
type RateLimitStore struct {
	Backend         string        `env:"RATE_LIMIT_BACKEND" envDefault:"redis"`
	MemoryMaxKeys   int           `env:"RATELIMIT_MEMORY_MAX_KEYS" envDefault:"10000"`
	CleanupInterval time.Duration `env:"RATELIMIT_CLEANUP_INTERVAL" envDefault:"5m"`

	// Consecutive Redis failures before checks skip the store, and how long they skip it.
	BreakerFailureThreshold int           `env:"RATELIMIT_CB_FAILURE_THRESHOLD" envDefault:"5"`
	BreakerRecoveryTimeout  time.Duration `env:"RATELIMIT_CB_RECOVERY_TIMEOUT" envDefault:"30s"`
}

// Breaker is the base circuit breaker configuration shared by every provider.
type Breaker struct {
	SlidingWindowSize      int           `env:"CB_SLIDING_WINDOW_SIZE" envDefault:"10"`
	MinimumNumberOfCalls   int           `env:"CB_MINIMUM_NUMBER_OF_CALLS" envDefault:"5"`
	FailureRateThreshold   float64       `env:"CB_FAILURE_RATE_THRESHOLD" envDefault:"50"`
	SlowCallRateThreshold  float64       `env:"CB_SLOW_CALL_RATE_THRESHOLD" envDefault:"100"`
	SlowCallDuration       time.Duration `env:"CB_SLOW_CALL_DURATION" envDefault:"5s"`
	WaitDurationInOpen     time.Duration `env:"CB_WAIT_DURATION_IN_OPEN_STATE" envDefault:"30s"`
	PermittedCallsHalfOpen uint32        `env:"CB_PERMITTED_CALLS_IN_HALF_OPEN_STATE" envDefault:"3"`
	AutomaticTransition    bool          `env:"CB_AUTOMATIC_TRANSITION" envDefault:"true"`
}

// Email configures the email channel.
type Email struct {
	ActiveProvider string `env:"EMAIL_ACTIVE_PROVIDER" envDefault:"SMTP"`
	DefaultFrom    string `env:"EMAIL_DEFAULT_FROM" envDefault:"no-reply@localhost"`

	SMTP     email.SMTPConfig
	SendGrid email.SendGridConfig
	Postmark email.PostmarkConfig

	Delivery Delivery `envPrefix:"EMAIL_"`
	Batch    Batch    `envPrefix:"EMAIL_"`
}

// Push configures the push channel.
type Push struct {
	ActiveProvider string `env:"PUSH_ACTIVE_PROVIDER" envDefault:"FCM"`

	FCM     push.FCMConfig
	APNS    push.APNSConfig
	WebPush push.WebPushConfig

	Delivery Delivery `envPrefix:"PUSH_"`
	Batch    Batch    `envPrefix:"PUSH_"`
}

// Delivery tunes retry and the async executor of one channel. Unset retry
// fields keep the channel's built-in backoff.
type Delivery struct {
	RetryMaxAttempts  int           `env:"RETRY_MAX_ATTEMPTS"`
	RetryInitialDelay time.Duration `env:"RETRY_INITIAL_DELAY"`
	RetryMaxDelay     time.Duration `env:"RETRY_MAX_DELAY"`
	RetryMultiplier   float64       `env:"RETRY_MULTIPLIER"`
	RetryMaxElapsed   time.Duration `env:"RETRY_MAX_ELAPSED"`
	ProviderTimeout   time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"30s"`
	Workers           int           `env:"EXECUTOR_WORKERS" envDefault:"10"`
	QueueCapacity     int           `env:"EXECUTOR_QUEUE_CAPACITY" envDefault:"100"`
}

// Batch tunes the batch writer of one channel.
type Batch struct {
	Size           int           `env:"BATCH_SIZE" envDefault:"50"`
	QueueCapacity  int           `env:"BATCH_QUEUE_CAPACITY" envDefault:"1000"`
	FlushInterval  time.Duration `env:"BATCH_FLUSH_INTERVAL" envDefault:"1s"`
	EnqueueTimeout time.Duration `env:"BATCH_ENQUEUE_TIMEOUT" envDefault:"100ms"`
}

// Idempotency configures event id deduplication.
type Idempotency struct {
	KeyPrefix string        `env:"IDEMPOTENCY_KEY_PREFIX" envDefault:"idempotency:email:"`
	TTL       time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
}

// LoadDotEnv loads the given files, or ".env" when none are named, into the
// process environment. Missing files are ignored and set variables win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Load parses the environment, applies the provider file and validates the result.
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.RateLimit = pkgconfig.LoadRateLimitConfig()

	if cfg.ProvidersFile != "" {
		f, err := LoadProviderFile(cfg.ProvidersFile)
		if err != nil {
			return nil, err
		}
		cfg.ApplyProviderFile(f)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyProviderFile copies the file's overrides onto the configuration.
func (c *Config) ApplyProviderFile(f *ProviderFile) {
	if f.Email.Active != "" {
		c.Email.ActiveProvider = f.Email.Active
	}
	if f.Push.Active != "" {
		c.Push.ActiveProvider = f.Push.Active
	}
	if c.Providers == nil {
		c.Providers = make(map[entity.ProviderType]ProviderSettings)
	}
	for _, providers := range []map[string]ProviderSettings{f.Email.Providers, f.Push.Providers} {
		for name, s := range providers {
			t := entity.ProviderType(name)
			enabled, priority := c.providerFields(t)
			if s.Enabled != nil && enabled != nil {
				*enabled = *s.Enabled
			}
			if s.Priority != nil && priority != nil {
				*priority = *s.Priority
			}
			c.Providers[t] = s
		}
	}
}

func (c *Config) providerFields(t entity.ProviderType) (*bool, *int) {
	switch t {
	case entity.ProviderSMTP:
		return &c.Email.SMTP.Enabled, &c.Email.SMTP.Priority
	case entity.ProviderSendGrid:
		return &c.Email.SendGrid.Enabled, &c.Email.SendGrid.Priority
	case entity.ProviderPostmark:
		return &c.Email.Postmark.Enabled, &c.Email.Postmark.Priority
	case entity.ProviderFCM:
		return &c.Push.FCM.Enabled, &c.Push.FCM.Priority
	case entity.ProviderAPNS:
		return &c.Push.APNS.Enabled, &c.Push.APNS.Priority
	case entity.ProviderWebPush:
		return &c.Push.WebPush.Enabled, &c.Push.WebPush.Priority
	}
	return nil, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.HTTP.Port < 1 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be in 1-65535, got %d", c.HTTP.Port))
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("HTTP_MAX_BODY_BYTES must be positive, got %d", c.HTTP.MaxBodyBytes))
	}
	if err := pkgconfig.ValidatePositiveDuration(c.HTTP.ShutdownTimeout); err != nil {
		errs = append(errs, fmt.Errorf("SHUTDOWN_TIMEOUT: %w", err))
	}
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_TRACE_SAMPLE_RATIO must be in [0, 1], got %v", c.SampleRatio))
	}
	if c.Mongo.ConnectionURL == "" {
		errs = append(errs, errors.New("MONGODB_URL is required"))
	}
	if !isChannelProvider(entity.ChannelEmail, entity.ProviderType(c.Email.ActiveProvider)) {
		errs = append(errs, fmt.Errorf("EMAIL_ACTIVE_PROVIDER %q is not an email provider", c.Email.ActiveProvider))
	}
	if !isChannelProvider(entity.ChannelPush, entity.ProviderType(c.Push.ActiveProvider)) {
		errs = append(errs, fmt.Errorf("PUSH_ACTIVE_PROVIDER %q is not a push provider", c.Push.ActiveProvider))
	}
	if err := c.BreakerConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("circuit breaker: %w", err))
	}
	if err := c.EmailDelivery().Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("email retry: %w", err))
	}
	if err := c.PushDelivery().Retry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("push retry: %w", err))
	}
	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("rate limit: %w", err))
	}
	if err := c.RateLimitStore.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func (r RateLimitStore) validate() error {
	var errs []error
	switch r.Backend {
	case RateLimitBackendRedis, RateLimitBackendMemory:
	default:
		errs = append(errs, fmt.Errorf("RATE_LIMIT_BACKEND must be %q or %q, got %q",
			RateLimitBackendRedis, RateLimitBackendMemory, r.Backend))
	}
	if err := pkgconfig.ValidatePositiveDuration(r.CleanupInterval); err != nil {
		errs = append(errs, fmt.Errorf("RATELIMIT_CLEANUP_INTERVAL: %w", err))
	}
	if r.BreakerFailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("RATELIMIT_CB_FAILURE_THRESHOLD must be positive, got %d", r.BreakerFailureThreshold))
	}
	if err := pkgconfig.ValidatePositiveDuration(r.BreakerRecoveryTimeout); err != nil {
		errs = append(errs, fmt.Errorf("RATELIMIT_CB_RECOVERY_TIMEOUT: %w", err))
	}
	return errors.Join(errs...)
}

// BreakerConfig returns the registry base configuration.
func (c *Config) BreakerConfig() circuitbreaker.Config {
	b := c.Breaker
	cfg := circuitbreaker.DefaultConfig("")
	cfg.SlidingWindowSize = b.SlidingWindowSize
	cfg.MinimumNumberOfCalls = b.MinimumNumberOfCalls
	cfg.FailureRateThreshold = b.FailureRateThreshold
	cfg.SlowCallRateThreshold = b.SlowCallRateThreshold
	cfg.SlowCallDurationThreshold = b.SlowCallDuration
	cfg.WaitDurationInOpenState = b.WaitDurationInOpen
	cfg.PermittedNumberOfCallsInHalfOpenState = b.PermittedCallsHalfOpen
	cfg.AutomaticTransition = b.AutomaticTransition
	return cfg
}

// EmailDelivery returns the email pipeline configuration.
func (c *Config) EmailDelivery() delivery.Config {
	return c.Email.Delivery.apply(delivery.EmailConfig(), c.timeouts(entity.ChannelEmail))
}

// PushDelivery returns the push pipeline configuration.
func (c *Config) PushDelivery() delivery.Config {
	return c.Push.Delivery.apply(delivery.PushConfig(), c.timeouts(entity.ChannelPush))
}

// EmailBatch returns the email batch writer configuration.
func (c *Config) EmailBatch() batch.Config { return c.Email.Batch.config("email") }

// PushBatch returns the push batch writer configuration.
func (c *Config) PushBatch() batch.Config { return c.Push.Batch.config("push") }

// Throttle returns the send rate of provider t. Zero rps means unthrottled.
func (c *Config) Throttle(t entity.ProviderType) (rps float64, burst int) {
	s := c.Providers[t]
	return s.RPS, s.Burst
}

func (c *Config) timeouts(ch entity.Channel) map[entity.ProviderType]time.Duration {
	out := make(map[entity.ProviderType]time.Duration)
	for t, s := range c.Providers {
		if t.Channel() == ch && s.Timeout > 0 {
			out[t] = s.Timeout
		}
	}
	return out
}

func (d Delivery) apply(base delivery.Config, timeouts map[entity.ProviderType]time.Duration) delivery.Config {
	if d.RetryMaxAttempts > 0 {
		base.Retry.MaxAttempts = d.RetryMaxAttempts
	}
	if d.RetryInitialDelay > 0 {
		base.Retry.InitialDelay = d.RetryInitialDelay
	}
	if d.RetryMaxDelay > 0 {
		base.Retry.MaxDelay = d.RetryMaxDelay
	}
	if d.RetryMultiplier > 0 {
		base.Retry.Multiplier = d.RetryMultiplier
	}
	if d.RetryMaxElapsed > 0 {
		base.Retry.MaxElapsed = d.RetryMaxElapsed
	}
	if d.ProviderTimeout > 0 {
		base.DefaultTimeout = d.ProviderTimeout
	}
	if d.Workers > 0 {
		base.Workers = d.Workers
	}
	if d.QueueCapacity > 0 {
		base.QueueCapacity = d.QueueCapacity
	}
	base.ProviderTimeouts = timeouts
	return base
}

func (b Batch) config(name string) batch.Config {
	return batch.Config{
		Name:           name,
		BatchSize:      b.Size,
		QueueCapacity:  b.QueueCapacity,
		FlushInterval:  b.FlushInterval,
		EnqueueTimeout: b.EnqueueTimeout,
	}
}
