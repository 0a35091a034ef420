package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/t77yq/webhook-cronjob/internal/model"
)

// RunMode selects how the process drives dispatches
type RunMode string

const (
	ModeSchedule RunMode = "schedule"
	ModeOnce     RunMode = "once"
	ModeServer   RunMode = "server"
)

const (
	DefaultCronExpression = "*/5 * * * *"
	DefaultTimezone       = "UTC"
	DefaultPort           = 3000
	DefaultWebhookTimeout = 10 * time.Second
	DefaultSubjectPrefix  = "webhook.dispatch"
)

var (
	// ErrMissingWebhookURL is returned when a mode that dispatches has no target
	ErrMissingWebhookURL = errors.New("WEBHOOK_URL is required")

	// ErrInvalidWebhookURL is returned when the target is not an absolute http(s) URL
	ErrInvalidWebhookURL = errors.New("invalid WEBHOOK_URL")

	// ErrInvalidRunMode is returned for an unknown RUN_MODE
	ErrInvalidRunMode = errors.New("invalid RUN_MODE")
)

// Config is the process configuration. It is resolved once at startup and
// passed by value afterwards.
type Config struct {
	WebhookURL        string        `mapstructure:"webhook_url"`
	WebhookTimeout    time.Duration `mapstructure:"webhook_timeout"`
	CronExpression    string        `mapstructure:"cron_expression"`
	CronTimezone      string        `mapstructure:"cron_timezone"`
	RunAsCronjob      bool          `mapstructure:"run_as_cronjob"`
	RunMode           RunMode       `mapstructure:"run_mode"`
	Port              int           `mapstructure:"port"`
	HealthEnabled     bool          `mapstructure:"health_enabled"`
	LogLevel          string        `mapstructure:"log_level"`
	LogFormat         string        `mapstructure:"log_format"`
	NATSURL           string        `mapstructure:"nats_url"`
	NATSSubjectPrefix string        `mapstructure:"nats_subject_prefix"`
}

// Load resolves the configuration from the environment and an optional
// config file. It does not validate; call Validate before using the result.
func Load() (Config, error) {
	return LoadFrom(viper.New())
}

// LoadFrom resolves the configuration using the given viper instance
func LoadFrom(v *viper.Viper) (Config, error) {
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AutomaticEnv()

	// Every key needs a default so AutomaticEnv values reach Unmarshal.
	v.SetDefault("webhook_url", "")
	v.SetDefault("webhook_timeout", DefaultWebhookTimeout)
	v.SetDefault("cron_expression", DefaultCronExpression)
	v.SetDefault("cron_timezone", DefaultTimezone)
	v.SetDefault("run_as_cronjob", false)
	v.SetDefault("run_mode", "")
	v.SetDefault("port", DefaultPort)
	v.SetDefault("health_enabled", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")
	v.SetDefault("nats_url", "")
	v.SetDefault("nats_subject_prefix", DefaultSubjectPrefix)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.WebhookURL = strings.TrimSpace(cfg.WebhookURL)
	cfg.CronExpression = strings.TrimSpace(cfg.CronExpression)
	if cfg.CronExpression == "" {
		cfg.CronExpression = DefaultCronExpression
	}
	cfg.RunMode = RunMode(strings.ToLower(strings.TrimSpace(string(cfg.RunMode))))
	if cfg.RunMode == "" {
		cfg.RunMode = ModeSchedule
		if cfg.RunAsCronjob {
			cfg.RunMode = ModeOnce
		}
	}

	return cfg, nil
}

// Validate checks the configuration for fatal startup errors
func (c Config) Validate() error {
	switch c.RunMode {
	case ModeSchedule, ModeOnce, ModeServer:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidRunMode, c.RunMode)
	}

	// Server mode serves health regardless of the webhook settings. An
	// unusable URL there only disables the startup send.
	if c.RunMode != ModeServer {
		if c.WebhookURL == "" {
			return ErrMissingWebhookURL
		}
		if err := ValidateWebhookURL(c.WebhookURL); err != nil {
			return err
		}
	}

	if c.WebhookTimeout < 0 {
		return fmt.Errorf("invalid WEBHOOK_TIMEOUT: %s", c.WebhookTimeout)
	}
	if c.ServesHTTP() && (c.Port < 1 || c.Port > 65535) {
		return fmt.Errorf("invalid PORT: %d", c.Port)
	}

	return nil
}

// Schedule returns the schedule the webhook is dispatched on
func (c Config) Schedule() model.ScheduleConfig {
	return model.ScheduleConfig{
		Expression: c.CronExpression,
		Timezone:   c.CronTimezone,
	}
}

// ServesHTTP reports whether the health endpoint is served in this mode
func (c Config) ServesHTTP() bool {
	return c.RunMode == ModeServer || (c.RunMode == ModeSchedule && c.HealthEnabled)
}

// ValidateWebhookURL checks that raw is an absolute http(s) URL
func ValidateWebhookURL(raw string) error {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWebhookURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidWebhookURL, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidWebhookURL)
	}
	return nil
}
