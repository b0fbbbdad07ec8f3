package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/internal/logging"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/internal/tracing"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/alerts"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/apperrors"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/engine"
	"github.com/ogulcanaydogan/Budget-Deviation-Guardian/pkg/model"
)

// Config holds all Budget Deviation Guardian configuration.
type Config struct {
	Storage       StorageConfig       `mapstructure:"storage"`
	Source        SourceConfig        `mapstructure:"source"`
	Server        ServerConfig        `mapstructure:"server"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Email         EmailConfig         `mapstructure:"email"`
	Webhook       WebhookConfig       `mapstructure:"webhook"`
	Dashboard     DashboardConfig     `mapstructure:"dashboard"`
	Slack         SlackConfig         `mapstructure:"slack"`
	Defaults      DefaultsConfig      `mapstructure:"defaults"`
	Logging       logging.Config      `mapstructure:"logging"`
	Tracing       tracing.Config      `mapstructure:"tracing"`
}

// StorageConfig defines the engine database.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// Source drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// SourceConfig defines where projects and expenditures are read from.
// The sqlite driver reads the local mirror filled by `bdg projects import`.
type SourceConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// ServerConfig defines HTTP API settings.
type ServerConfig struct {
	Listen          string        `mapstructure:"listen"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// EngineConfig defines evaluation concurrency and scheduling.
type EngineConfig struct {
	Workers          int            `mapstructure:"workers"`
	PartitionWorkers int            `mapstructure:"partition_workers"`
	ProjectTimeout   time.Duration  `mapstructure:"project_timeout"`
	Schedule         ScheduleConfig `mapstructure:"schedule"`
}

// ScheduleConfig drives scheduled triggers while `bdg serve` runs.
// A zero interval or an empty tenant list disables the scheduler.
type ScheduleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Tenants  []string      `mapstructure:"tenants"`
}

// NotificationsConfig defines delivery retries and throttling.
type NotificationsConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffMax      time.Duration `mapstructure:"backoff_max"`
	DeliveryTimeout time.Duration `mapstructure:"delivery_timeout"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"`
	RateBurst       int           `mapstructure:"rate_burst"`
	BatchSize       int           `mapstructure:"batch_size"`
}

// EmailConfig defines SMTP settings.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// WebhookConfig defines outbound webhook settings. The target URL is part of
// each project's alert configuration.
type WebhookConfig struct {
	Secret  string        `mapstructure:"secret"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DashboardConfig defines the live dashboard feed.
type DashboardConfig struct {
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	Prefix        string `mapstructure:"prefix"`
}

// SlackConfig defines the operator channel for exhausted deliveries.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
}

// DefaultsConfig defines the alert configuration used by projects without one.
type DefaultsConfig struct {
	Low                   float64 `mapstructure:"low"`
	Medium                float64 `mapstructure:"medium"`
	High                  float64 `mapstructure:"high"`
	Critical              float64 `mapstructure:"critical"`
	CheckFrequencyMinutes int     `mapstructure:"check_frequency_minutes"`
	Dashboard             bool    `mapstructure:"dashboard"`
	Email                 bool    `mapstructure:"email"`
}

// Load reads configuration from file and environment variables.
func Load(cfgFile string) (*Config, error) {
	// A missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("find home directory: %w", err)
		}

		v.AddConfigPath(filepath.Join(home, ".bdg"))
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("BDG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	home, _ := os.UserHomeDir()
	def := model.DefaultConfiguration()
	dispatch := engine.DefaultDispatcherConfig()

	v.SetDefault("storage.path", filepath.Join(home, ".bdg", "guardian.db"))
	v.SetDefault("source.driver", DriverSQLite)
	v.SetDefault("source.dsn", "")

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("engine.workers", 4)
	v.SetDefault("engine.partition_workers", 4)
	v.SetDefault("engine.project_timeout", "2m")
	v.SetDefault("engine.schedule.interval", "0s")
	v.SetDefault("engine.schedule.tenants", []string{})

	v.SetDefault("notifications.max_attempts", dispatch.MaxAttempts)
	v.SetDefault("notifications.backoff_base", dispatch.BackoffBase.String())
	v.SetDefault("notifications.backoff_max", dispatch.BackoffMax.String())
	v.SetDefault("notifications.delivery_timeout", dispatch.DeliveryTimeout.String())
	v.SetDefault("notifications.rate_per_second", 0)
	v.SetDefault("notifications.rate_burst", 1)
	v.SetDefault("notifications.batch_size", dispatch.BatchSize)

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.host", "")
	v.SetDefault("email.port", 587)
	v.SetDefault("email.username", "")
	v.SetDefault("email.password", "")
	v.SetDefault("email.from", "alertas@obrasai.com")

	v.SetDefault("webhook.secret", "")
	v.SetDefault("webhook.timeout", "10s")

	v.SetDefault("dashboard.redis_addr", "")
	v.SetDefault("dashboard.redis_password", "")
	v.SetDefault("dashboard.redis_db", 0)
	v.SetDefault("dashboard.prefix", "bdg:dashboard")

	v.SetDefault("slack.enabled", false)
	v.SetDefault("slack.webhook_url", "")
	v.SetDefault("slack.channel", "#obras-alertas")

	v.SetDefault("defaults.low", def.Thresholds.Low)
	v.SetDefault("defaults.medium", def.Thresholds.Medium)
	v.SetDefault("defaults.high", def.Thresholds.High)
	v.SetDefault("defaults.critical", def.Thresholds.Critical)
	v.SetDefault("defaults.check_frequency_minutes", def.CheckFrequencyMinutes)
	v.SetDefault("defaults.dashboard", def.Channels.Dashboard.Enabled)
	v.SetDefault("defaults.email", def.Channels.Email.Enabled)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 28)
	v.SetDefault("logging.compress", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "")
	v.SetDefault("tracing.service_name", "budget-deviation-guardian")
	v.SetDefault("tracing.environment", "production")
	v.SetDefault("tracing.insecure", false)
	v.SetDefault("tracing.timeout", "5s")
	v.SetDefault("tracing.sample_rate", 1.0)
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	var problems []string

	switch c.Source.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Source.DSN == "" {
			problems = append(problems, "source.dsn is required for the postgres driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown source driver %q", c.Source.Driver))
	}

	if c.Engine.Workers < 1 {
		problems = append(problems, "engine.workers must be at least 1")
	}
	if c.Engine.PartitionWorkers < 1 {
		problems = append(problems, "engine.partition_workers must be at least 1")
	}
	if c.Engine.ProjectTimeout <= 0 {
		problems = append(problems, "engine.project_timeout must be positive")
	}
	if c.Notifications.MaxAttempts < 1 {
		problems = append(problems, "notifications.max_attempts must be at least 1")
	}
	if c.Notifications.BackoffBase <= 0 || c.Notifications.BackoffMax < c.Notifications.BackoffBase {
		problems = append(problems, "notifications backoff must satisfy 0 < backoff_base <= backoff_max")
	}
	if c.Notifications.RatePerSecond < 0 {
		problems = append(problems, "notifications.rate_per_second must not be negative")
	}

	d := c.Defaults
	if d.Low < 0 || d.Low >= d.Medium || d.Medium >= d.High || d.High >= d.Critical {
		problems = append(problems, "default thresholds must be non-negative and strictly increasing")
	}
	if d.CheckFrequencyMinutes < model.MinCheckFrequency {
		problems = append(problems, fmt.Sprintf("defaults.check_frequency_minutes must be at least %d", model.MinCheckFrequency))
	}

	if c.Email.Enabled {
		if err := c.EmailSettings().Validate(); err != nil {
			problems = append(problems, "email: "+err.Error())
		}
	}
	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		problems = append(problems, "slack.webhook_url is required when slack is enabled")
	}
	if err := c.Tracing.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return &apperrors.ValidationError{Problems: problems}
	}
	return nil
}

// DefaultAlertConfiguration returns the configuration applied to projects without one.
func (c *Config) DefaultAlertConfiguration() model.AlertConfiguration {
	cfg := model.DefaultConfiguration()
	cfg.Thresholds = model.Thresholds{
		Low:      c.Defaults.Low,
		Medium:   c.Defaults.Medium,
		High:     c.Defaults.High,
		Critical: c.Defaults.Critical,
	}
	cfg.CheckFrequencyMinutes = c.Defaults.CheckFrequencyMinutes
	cfg.Channels.Dashboard.Enabled = c.Defaults.Dashboard
	cfg.Channels.Email.Enabled = c.Defaults.Email
	return cfg
}

// DispatcherConfig converts the notification settings.
func (c *Config) DispatcherConfig() engine.DispatcherConfig {
	n := c.Notifications
	return engine.DispatcherConfig{
		MaxAttempts:     n.MaxAttempts,
		BackoffBase:     n.BackoffBase,
		BackoffMax:      n.BackoffMax,
		DeliveryTimeout: n.DeliveryTimeout,
		RatePerSecond:   n.RatePerSecond,
		RateBurst:       n.RateBurst,
		BatchSize:       n.BatchSize,
	}
}

// TriggerConfig converts the engine settings.
func (c *Config) TriggerConfig() engine.TriggerConfig {
	return engine.TriggerConfig{
		Workers:        c.Engine.Workers,
		ProjectTimeout: c.Engine.ProjectTimeout,
	}
}

// EmailSettings converts the SMTP settings.
func (c *Config) EmailSettings() alerts.EmailConfig {
	return alerts.EmailConfig{
		Host:     c.Email.Host,
		Port:     c.Email.Port,
		Username: c.Email.Username,
		Password: c.Email.Password,
		From:     c.Email.From,
	}
}
