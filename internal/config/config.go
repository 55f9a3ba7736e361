package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// HTTP ingress
	HTTPAddr            string `env:"HTTP_ADDR" envDefault:":8080"`
	WebhookSecret       string `env:"WEBHOOK_SECRET,required"`
	WebhookSecretHeader string `env:"WEBHOOK_SECRET_HEADER" envDefault:"X-Webhook-Secret"`

	// Policy API
	PolicyAPIURL     string        `env:"POLICY_API_URL,required"` // e.g., https://policy.example.com
	PolicyAPIToken   string        `env:"POLICY_API_TOKEN,required"`
	PolicyAPITimeout time.Duration `env:"POLICY_API_TIMEOUT" envDefault:"10s"`

	// Email source (enabled when IMAP_EMAIL is set)
	IMAPEmail       string        `env:"IMAP_EMAIL"`
	IMAPPassword    string        `env:"IMAP_PASSWORD"`
	IMAPServer      string        `env:"IMAP_SERVER"` // host:port, resolved from the address when empty
	IMAPMailbox     string        `env:"IMAP_MAILBOX" envDefault:"INBOX"`
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`

	// SMS source
	SMSInboxEnabled  bool `env:"SMS_INBOX_ENABLED" envDefault:"true"`
	SMSInboxCapacity int  `env:"SMS_INBOX_CAPACITY" envDefault:"1000"`

	// Engine
	PollInterval      time.Duration `env:"POLL_INTERVAL" envDefault:"5s"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" envDefault:"10s"`
	DefaultRequestTTL time.Duration `env:"DEFAULT_REQUEST_TTL" envDefault:"5m"`
	MinConfidence     float64       `env:"MIN_CONFIDENCE" envDefault:"0"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/otprelay.db"`

	// Telegram notifications (optional)
	TelegramToken   string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID  int64  `env:"TELEGRAM_CHAT_ID"`
	TelegramTopicID int    `env:"TELEGRAM_TOPIC_ID"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// EmailEnabled returns true if the IMAP source is configured
func (c *Config) EmailEnabled() bool {
	return c.IMAPEmail != ""
}

// TelegramEnabled returns true if Telegram notifications are configured
func (c *Config) TelegramEnabled() bool {
	return c.TelegramToken != "" && c.TelegramChatID != 0
}

// Load loads configuration from environment variables. envFile, when set,
// must exist; otherwise a .env in the working directory is loaded if present.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges and cross-field requirements
func (c *Config) Validate() error {
	var errs []error

	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("POLL_INTERVAL must be positive"))
	}
	if c.SweepInterval <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL must be positive"))
	}
	if c.DefaultRequestTTL <= 0 {
		errs = append(errs, errors.New("DEFAULT_REQUEST_TTL must be positive"))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("MIN_CONFIDENCE must be within [0, 1], got %v", c.MinConfidence))
	}
	if c.EmailEnabled() && c.IMAPPassword == "" {
		errs = append(errs, errors.New("IMAP_PASSWORD is required when IMAP_EMAIL is set"))
	}
	if !c.EmailEnabled() && !c.SMSInboxEnabled {
		errs = append(errs, errors.New("at least one source must be enabled"))
	}
	if (c.TelegramToken == "") != (c.TelegramChatID == 0) {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together"))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
