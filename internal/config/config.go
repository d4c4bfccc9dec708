// Package config provides configuration management for the restock monitor.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"

	apperrors "restock-monitor/internal/errors"
	"restock-monitor/internal/logging"
	"restock-monitor/internal/models"
	"restock-monitor/pkg/utils"
)

// Config holds all application configuration.
type Config struct {
	Items         []models.TrackedItem `mapstructure:"items"`
	Schedule      ScheduleConfig       `mapstructure:"schedule"`
	Fetcher       FetcherConfig        `mapstructure:"fetcher"`
	Storage       StorageConfig        `mapstructure:"storage"`
	Notifications NotificationConfig   `mapstructure:"notifications"`
	Bot           BotConfig            `mapstructure:"bot"`
	Server        ServerConfig         `mapstructure:"server"`
	Logging       logging.LogConfig    `mapstructure:"logging"`
	Credentials   Credentials          `mapstructure:"-"` // Loaded separately
}

// ScheduleConfig holds the wall-clock trigger points of the monitoring cycle.
type ScheduleConfig struct {
	Times    []string `mapstructure:"times"`    // "HH:MM"
	Timezone string   `mapstructure:"timezone"` // IANA name, e.g. "UTC" or "Europe/Moscow"
}

// FetcherConfig holds remote inventory endpoint configuration.
type FetcherConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
	Concurrency      int           `mapstructure:"concurrency"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
}

// StorageConfig holds persistence configuration.
type StorageConfig struct {
	Path     string `mapstructure:"path"`
	Timezone string `mapstructure:"timezone"` // calendar used for daily aggregation
}

// NotificationConfig holds notification configuration.
type NotificationConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	Email    EmailConfig    `mapstructure:"email"`
	AMQP     AMQPConfig     `mapstructure:"amqp"`
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
}

// TelegramConfig holds Telegram notification configuration.
// The bot token lives in credentials.toml.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	ChatID  string `mapstructure:"chat_id"`
}

// EmailConfig holds email notification configuration.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	SMTPHost string `mapstructure:"smtp_host"`
	SMTPPort int    `mapstructure:"smtp_port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	To       string `mapstructure:"to"`
}

// AMQPConfig holds message broker fan-out configuration.
type AMQPConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Exchange string `mapstructure:"exchange"`
}

// BotConfig holds the operator command surface configuration.
type BotConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	AdminChatID int64         `mapstructure:"admin_chat_id"`
	PollTimeout time.Duration `mapstructure:"poll_timeout"`
	AuditPath   string        `mapstructure:"audit_path"`
}

// ServerConfig holds the health-check HTTP surface configuration.
type ServerConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// Credentials holds secrets.
type Credentials struct {
	Telegram TelegramCredentials `mapstructure:"telegram"`
}

// TelegramCredentials holds the Telegram bot token.
type TelegramCredentials struct {
	BotToken string `mapstructure:"bot_token"`
}

// DefaultConfigDir returns the default configuration directory.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/restock-monitor"
	}
	return filepath.Join(home, ".config", "restock-monitor")
}

// Load loads configuration from the specified directory.
// If configDir is empty, uses the default config directory.
func Load(configDir string) (*Config, error) {
	if configDir == "" {
		configDir = DefaultConfigDir()
	}

	cfg := &Config{}

	if err := loadConfigFile(configDir, "config", cfg); err != nil {
		return nil, fmt.Errorf("loading config.toml: %w", err)
	}

	if err := loadCredentials(configDir, &cfg.Credentials); err != nil {
		return nil, fmt.Errorf("loading credentials.toml: %w", err)
	}

	applyEnvOverrides(cfg)
	applyDerivedDefaults(cfg, configDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("items", []map[string]interface{}{
		{
			"id":           "hw_265193",
			"display_name": "Hot Wheels Basic Car",
			"product_id":   "265193",
			"store_id":     "3223",
			"store_label":  "Lenta",
		},
	})
	v.SetDefault("schedule.times", []string{"07:00", "15:00"})
	v.SetDefault("schedule.timezone", "UTC")
	v.SetDefault("fetcher.base_url", "https://lenta.com")
	v.SetDefault("fetcher.timeout", 10*time.Second)
	v.SetDefault("fetcher.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	v.SetDefault("fetcher.concurrency", 4)
	v.SetDefault("fetcher.failure_threshold", 5)
	v.SetDefault("fetcher.open_timeout", 30*time.Minute)
	v.SetDefault("storage.timezone", "UTC")
	v.SetDefault("notifications.enabled", true)
	v.SetDefault("notifications.email.smtp_port", 587)
	v.SetDefault("notifications.amqp.exchange", "restock_events")
	v.SetDefault("bot.enabled", true)
	v.SetDefault("bot.poll_timeout", 30*time.Second)
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.addr", ":5000")

	logDefaults := logging.DefaultLogConfig()
	v.SetDefault("logging.level", logDefaults.Level)
	v.SetDefault("logging.console", logDefaults.Console)
	v.SetDefault("logging.file", logDefaults.File)
	v.SetDefault("logging.file_path", logDefaults.FilePath)
	v.SetDefault("logging.max_size", logDefaults.MaxSize)
	v.SetDefault("logging.max_backups", logDefaults.MaxBackups)
	v.SetDefault("logging.max_age", logDefaults.MaxAge)
}

func loadConfigFile(configDir, name string, target *Config) error {
	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found, create template
			return createTemplateConfig(configDir, name)
		}
		return err
	}

	return v.Unmarshal(target)
}

func loadCredentials(configDir string, creds *Credentials) error {
	v := viper.New()
	v.SetConfigName("credentials")
	v.SetConfigType("toml")
	v.AddConfigPath(configDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Secrets may still arrive through the environment.
			return createTemplateCredentials(configDir)
		}
		return err
	}

	return v.Unmarshal(creds)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Credentials.Telegram.BotToken = v
	}
	if v := os.Getenv("ADMIN_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Bot.AdminChatID = id
		}
	}
	if v := os.Getenv("RESTOCK_DB_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("RESTOCK_HTTP_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PORT"); v != "" && os.Getenv("RESTOCK_HTTP_ADDR") == "" {
		cfg.Server.Addr = ":" + v
	}
	if v := os.Getenv("AMQP_URL"); v != "" {
		cfg.Notifications.AMQP.URL = v
	}
}

func applyDerivedDefaults(cfg *Config, configDir string) {
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = filepath.Join(configDir, "restock.db")
	}
	if cfg.Bot.AuditPath == "" {
		cfg.Bot.AuditPath = filepath.Join(configDir, "logs", "audit.log")
	}
	// Alerts go to the operator unless another chat is configured.
	if cfg.Notifications.Telegram.ChatID == "" && cfg.Bot.AdminChatID != 0 {
		cfg.Notifications.Telegram.ChatID = strconv.FormatInt(cfg.Bot.AdminChatID, 10)
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if len(c.Items) == 0 {
		return apperrors.NewValidationError("items", 0, "at least one tracked item is required")
	}
	seen := make(map[string]bool, len(c.Items))
	for i, item := range c.Items {
		if item.ID == "" {
			return apperrors.NewValidationError(fmt.Sprintf("items[%d].id", i), item.ID, "must not be empty")
		}
		if seen[item.ID] {
			return apperrors.NewValidationError(fmt.Sprintf("items[%d].id", i), item.ID, "duplicate item id")
		}
		seen[item.ID] = true
		if item.RemoteProductID == "" || item.RemoteStoreID == "" {
			return apperrors.NewValidationError(fmt.Sprintf("items[%d]", i), item.ID, "product_id and store_id are required")
		}
	}

	if len(c.Schedule.Times) == 0 {
		return apperrors.NewValidationError("schedule.times", c.Schedule.Times, "at least one trigger time is required")
	}
	for _, t := range c.Schedule.Times {
		if _, err := time.Parse("15:04", t); err != nil {
			return apperrors.NewValidationError("schedule.times", t, "expected HH:MM")
		}
	}
	if _, err := utils.LoadLocation(c.Schedule.Timezone); err != nil {
		return apperrors.NewValidationError("schedule.timezone", c.Schedule.Timezone, err.Error())
	}
	if _, err := utils.LoadLocation(c.Storage.Timezone); err != nil {
		return apperrors.NewValidationError("storage.timezone", c.Storage.Timezone, err.Error())
	}

	if c.Fetcher.Timeout <= 0 {
		return apperrors.NewValidationError("fetcher.timeout", c.Fetcher.Timeout, "must be positive")
	}
	if c.Fetcher.BaseURL == "" {
		return apperrors.NewValidationError("fetcher.base_url", c.Fetcher.BaseURL, "must not be empty")
	}

	if c.Bot.Enabled && c.Bot.AdminChatID == 0 {
		return apperrors.NewValidationError("bot.admin_chat_id", c.Bot.AdminChatID, "required when the bot is enabled")
	}

	return nil
}

// Item returns the tracked item with the given id.
func (c *Config) Item(id string) (models.TrackedItem, bool) {
	for _, item := range c.Items {
		if item.ID == id {
			return item, true
		}
	}
	return models.TrackedItem{}, false
}

// ScheduleLocation returns the timezone the trigger times are expressed in.
func (c *Config) ScheduleLocation() *time.Location {
	return utils.MustLocation(c.Schedule.Timezone)
}

// StorageLocation returns the timezone used for calendar-day grouping.
func (c *Config) StorageLocation() *time.Location {
	return utils.MustLocation(c.Storage.Timezone)
}
