// Package config provides configuration management for the forumwatch binary.
// Settings come from a YAML file, then environment variables override them.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"gopkg.in/yaml.v3"

	"github.com/coregx/forumwatch"
)

// DefaultPath is the configuration file read when no -config flag is given.
const DefaultPath = "config.yml"

// Config holds all configuration for the forumwatch binary.
type Config struct {
	Forum    ForumConfig    `yaml:"forum"`
	Criteria CriteriaConfig `yaml:"criteria"`
	Database DatabaseConfig `yaml:"database"`
	Notifier NotifierConfig `yaml:"notifier"`
	Telegram TelegramConfig `yaml:"telegram"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ForumConfig holds the scraping target and HTTP settings.
type ForumConfig struct {
	ListingURL        string        `yaml:"listing_url"`
	UserAgent         string        `yaml:"user_agent"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
	Timezone          string        `yaml:"timezone"` // IANA name used for "Today at" dates
}

// CriteriaConfig holds the qualification thresholds.
type CriteriaConfig struct {
	// IgnoreOlder is an absolute date or an offset re-resolved on every scan:
	// "30d", "2w", "12h", "45min", "6mo", "3 days ago". A bare "m" is rejected.
	IgnoreOlder string `yaml:"ignore_older"`
	MinViews    int    `yaml:"min_views"`
	MinReplies  int    `yaml:"min_replies"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres, pgx, sqlite3, mysql
	DSN      string `yaml:"dsn"`    // takes precedence over the discrete fields
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	MaxConns int    `yaml:"max_conns"`
}

// NotifierConfig selects the notification channel.
type NotifierConfig struct {
	Kind string `yaml:"kind"` // telegram, log
}

// TelegramConfig holds Bot API credentials.
type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

// PipelineConfig holds scan tuning.
type PipelineConfig struct {
	Concurrency int           `yaml:"concurrency"`
	ClaimLease  time.Duration `yaml:"claim_lease"`
}

// ScheduleConfig holds the repeat schedule. An empty Cron runs one scan.
type ScheduleConfig struct {
	Cron string `yaml:"cron"`
}

// LoggingConfig holds log settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// Default returns the configuration used before the file and environment apply.
func Default() *Config {
	return &Config{
		Forum: ForumConfig{
			ListingURL:        "https://bitcointalk.org/index.php?board=159.0",
			UserAgent:         "forumwatch/1.0",
			RequestsPerSecond: 2,
			Timeout:           30 * time.Second,
			Timezone:          "UTC",
		},
		Database: DatabaseConfig{
			Driver: "postgres",
			Host:   "localhost",
			Port:   5432,
			User:   "forumwatch",
			Name:   "forumwatch",
		},
		Notifier: NotifierConfig{Kind: "telegram"},
		Pipeline: PipelineConfig{
			Concurrency: 1,
			ClaimLease:  5 * time.Minute,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads path (if it exists), applies environment overrides and
// validates the result. A missing file is an error unless path is DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
		case err != nil:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	c.Forum.ListingURL = getEnv("FORUM_LISTING_URL", c.Forum.ListingURL)
	c.Forum.UserAgent = getEnv("FORUM_USER_AGENT", c.Forum.UserAgent)
	c.Forum.RequestsPerSecond = getEnvFloat("FORUM_RPS", c.Forum.RequestsPerSecond)
	c.Forum.Timeout = getEnvDuration("FORUM_TIMEOUT", c.Forum.Timeout)
	c.Forum.Timezone = getEnv("FORUM_TIMEZONE", c.Forum.Timezone)

	c.Criteria.IgnoreOlder = getEnv("CRITERIA_IGNORE_OLDER", c.Criteria.IgnoreOlder)
	c.Criteria.MinViews = getEnvInt("CRITERIA_MIN_VIEWS", c.Criteria.MinViews)
	c.Criteria.MinReplies = getEnvInt("CRITERIA_MIN_REPLIES", c.Criteria.MinReplies)

	c.Database.Driver = getEnv("DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("DB_DSN", c.Database.DSN)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnvInt("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.Name = getEnv("DB_NAME", c.Database.Name)
	c.Database.MaxConns = getEnvInt("DB_MAX_CONNS", c.Database.MaxConns)

	c.Notifier.Kind = getEnv("NOTIFIER", c.Notifier.Kind)
	c.Telegram.Token = getEnv("TELEGRAM_TOKEN", c.Telegram.Token)
	c.Telegram.ChatID = getEnvInt64("TELEGRAM_CHAT_ID", c.Telegram.ChatID)

	c.Pipeline.Concurrency = getEnvInt("PIPELINE_CONCURRENCY", c.Pipeline.Concurrency)
	c.Pipeline.ClaimLease = getEnvDuration("PIPELINE_CLAIM_LEASE", c.Pipeline.ClaimLease)

	c.Schedule.Cron = getEnv("SCHEDULE", c.Schedule.Cron)
	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Forum,
		validation.Field(&c.Forum.ListingURL, validation.Required),
		validation.Field(&c.Forum.RequestsPerSecond, validation.Required, validation.Min(0.01)),
		validation.Field(&c.Forum.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.Forum.Timezone, validation.By(validTimezone)),
	); err != nil {
		return fmt.Errorf("forum: %w", err)
	}

	if err := validation.ValidateStruct(&c.Criteria,
		validation.Field(&c.Criteria.IgnoreOlder, validation.Required, validation.By(validThreshold)),
		validation.Field(&c.Criteria.MinViews, validation.Min(0)),
		validation.Field(&c.Criteria.MinReplies, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("criteria: %w", err)
	}

	if err := validation.ValidateStruct(&c.Database,
		validation.Field(&c.Database.Driver, validation.Required,
			validation.In("postgres", "pgx", "sqlite3", "mysql")),
		validation.Field(&c.Database.Name,
			validation.When(c.Database.DSN == "", validation.Required)),
		validation.Field(&c.Database.MaxConns, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	isTelegram := c.Notifier.Kind == "telegram"
	if err := validation.ValidateStruct(&c.Notifier,
		validation.Field(&c.Notifier.Kind, validation.Required, validation.In("telegram", "log")),
	); err != nil {
		return fmt.Errorf("notifier: %w", err)
	}
	if err := validation.ValidateStruct(&c.Telegram,
		validation.Field(&c.Telegram.Token, validation.When(isTelegram, validation.Required)),
		validation.Field(&c.Telegram.ChatID, validation.When(isTelegram, validation.Required)),
	); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}

	if err := validation.ValidateStruct(&c.Pipeline,
		validation.Field(&c.Pipeline.Concurrency, validation.Required, validation.Min(1)),
		validation.Field(&c.Pipeline.ClaimLease, validation.Required, validation.Min(time.Second)),
	); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	return validation.ValidateStruct(&c.Logging,
		validation.Field(&c.Logging.Level, validation.In("debug", "info", "warn", "error")),
	)
}

// Location returns the forum time zone.
func (c *ForumConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func validThreshold(value interface{}) error {
	text, _ := value.(string)
	if text == "" {
		return nil
	}
	_, err := forumwatch.ParseThreshold(text, time.Now(), time.UTC)
	return err
}

func validTimezone(value interface{}) error {
	name, _ := value.(string)
	if _, err := time.LoadLocation(name); err != nil {
		return fmt.Errorf("unknown time zone %q", name)
	}
	return nil
}

// GetDSN returns the database connection string based on driver.
func (c *DatabaseConfig) GetDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	switch strings.ToLower(c.Driver) {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC",
			c.User, c.Password, c.Host, c.Port, c.Name)
	case "postgres", "pgx":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.Name)
	case "sqlite3":
		return c.Name // SQLite uses file path as DSN
	default:
		return ""
	}
}

// getEnv retrieves environment variable or returns default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves environment variable as integer or returns default value.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
