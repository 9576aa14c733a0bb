package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for lifesign.
type Config struct {
	General   GeneralConfig   `yaml:"general"`
	Provider  ProviderConfig  `yaml:"provider"`
	Update    UpdateConfig    `yaml:"update"`
	Download  DownloadConfig  `yaml:"download"`
	Thumbnail ThumbnailConfig `yaml:"thumbnail"`
	Reminder  ReminderConfig  `yaml:"reminder"`
	Web       WebConfig       `yaml:"web"`
	History   HistoryConfig   `yaml:"history"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type GeneralConfig struct {
	DataDir  string `yaml:"dataDir"`  // images and database live here
	LogLevel string `yaml:"logLevel"` // debug | info | warn | error
}

// ProviderConfig holds the messaging provider account settings. The secrets
// are normally supplied through the environment rather than the config file.
type ProviderConfig struct {
	AccountSID     string `yaml:"accountSid"`
	AuthToken      string `yaml:"authToken,omitempty"`
	APIBase        string `yaml:"apiBase,omitempty"`   // default: https://api.twilio.com
	TrustedNumber  string `yaml:"trustedNumber"`       // only sender whose MMS are accepted
	OutboundNumber string `yaml:"outboundNumber"`      // provider-assigned number reminders are sent from
}

type UpdateConfig struct {
	PollIntervalMinutes  int    `yaml:"pollIntervalMinutes"`  // unconditional refresh cadence
	SecretPattern        string `yaml:"secretPattern"`        // regexp the message body must match
	WebhookMaxAgeMinutes int    `yaml:"webhookMaxAgeMinutes"` // 0 = no age limit for webhook-triggered refreshes
}

type DownloadConfig struct {
	MaxRetries     int `yaml:"maxRetries"`
	TimeoutSeconds int `yaml:"timeoutSeconds"`
}

type ThumbnailConfig struct {
	MaxDimension int  `yaml:"maxDimension"` // longer edge of the generated thumbnail
	AllowUpscale bool `yaml:"allowUpscale"` // scale up sources smaller than maxDimension
}

type ReminderConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Recipient      string `yaml:"recipient"`      // who gets nagged
	ThresholdHours int    `yaml:"thresholdHours"` // send once the photo is this old
	IntervalHours  int    `yaml:"intervalHours"`  // how often the check runs
	DailyStartHour int    `yaml:"dailyStartHour"` // first check of the day (local time)
}

type WebConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	PublicURL string `yaml:"publicUrl"` // externally visible base URL, used for webhook signature validation
	Subject   string `yaml:"subject"`   // who the page is about
	Location  string `yaml:"location"`  // where they are
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"dbPath"`
}

type NotifyConfig struct {
	Telegram TelegramNotifyConfig `yaml:"telegram"`
}

type TelegramNotifyConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token,omitempty"`
	ChatID  int64  `yaml:"chatId,omitempty"`
}

// DefaultConfigDir returns ~/.lifesign.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".lifesign"
	}
	return filepath.Join(home, ".lifesign")
}

// DefaultConfigPath returns ~/.lifesign/config.yaml.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Load reads a config file, fills unset fields with defaults, and applies
// environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	applyEnv(cfg)
	return cfg, nil
}

// Save writes the config as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyEnv overlays provider credentials and identities from the environment.
// Environment values win over the file so secrets can stay out of it.
func applyEnv(cfg *Config) {
	overlay := map[string]*string{
		"TWILIO_ACCOUNT_SID":     &cfg.Provider.AccountSID,
		"TWILIO_AUTH_TOKEN":      &cfg.Provider.AuthToken,
		"TRUSTED_PHONE_NUMBER":   &cfg.Provider.TrustedNumber,
		"OUTBOUND_PHONE_NUMBER":  &cfg.Provider.OutboundNumber,
		"REMINDER_PHONE_NUMBER":  &cfg.Reminder.Recipient,
		"MESSAGE_SECRET_PATTERN": &cfg.Update.SecretPattern,
	}
	for name, dst := range overlay {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}
}

// Validate reports every required setting that is missing or malformed, in
// one pass, so an operator can fix them all at once.
func (c *Config) Validate() error {
	var missing []string
	if c.Provider.AccountSID == "" {
		missing = append(missing, "provider.accountSid (TWILIO_ACCOUNT_SID)")
	}
	if c.Provider.AuthToken == "" {
		missing = append(missing, "provider.authToken (TWILIO_AUTH_TOKEN)")
	}
	if c.Provider.TrustedNumber == "" {
		missing = append(missing, "provider.trustedNumber (TRUSTED_PHONE_NUMBER)")
	}
	if c.Reminder.Enabled {
		if c.Provider.OutboundNumber == "" {
			missing = append(missing, "provider.outboundNumber (OUTBOUND_PHONE_NUMBER)")
		}
		if c.Reminder.Recipient == "" {
			missing = append(missing, "reminder.recipient (REMINDER_PHONE_NUMBER)")
		}
	}
	if c.Notify.Telegram.Enabled && c.Notify.Telegram.Token == "" {
		missing = append(missing, "notify.telegram.token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("required settings missing:\n\t%s", strings.Join(missing, "\n\t"))
	}
	if c.Update.SecretPattern != "" {
		if _, err := regexp.Compile(c.Update.SecretPattern); err != nil {
			return fmt.Errorf("update.secretPattern: %w", err)
		}
	}
	if c.Thumbnail.MaxDimension <= 0 {
		return fmt.Errorf("thumbnail.maxDimension must be positive")
	}
	return nil
}
