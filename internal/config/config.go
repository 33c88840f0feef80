// Package config defines the top-level configuration for barrierbot and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/barrierbot/internal/pipeline"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by BARRIERBOT_* environment variables.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Alpaca   AlpacaConfig   `toml:"alpaca"`
	Crypto   CryptoConfig   `toml:"crypto"`
	Oracle   OracleConfig   `toml:"oracle"`
	Schedule ScheduleConfig `toml:"schedule"`
	Telegram TelegramConfig `toml:"telegram"`
	Notify   NotifyConfig   `toml:"notify"`
	Server   ServerConfig   `toml:"server"`
	Archive  ArchiveConfig  `toml:"archive"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
	// Currency labels money amounts in chat messages.
	Currency string `toml:"currency"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// S3Config locates the archive bucket. Prefix is the key prefix archives are
// written under.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// AlpacaConfig holds the stock market data credentials. TradingURL serves
// the asset list behind symbol search.
type AlpacaConfig struct {
	APIKey        string   `toml:"api_key"`
	APISecret     string   `toml:"api_secret"`
	DataURL       string   `toml:"data_url"`
	TradingURL    string   `toml:"trading_url"`
	Timeout       duration `toml:"timeout"`
	AssetCacheTTL duration `toml:"asset_cache_ttl"`
}

// CryptoConfig tunes the crypto ticker client.
type CryptoConfig struct {
	BaseURL       string   `toml:"base_url"`
	Timeout       duration `toml:"timeout"`
	RatePerSecond float64  `toml:"rate_per_second"`
	Burst         int      `toml:"burst"`
}

// OracleConfig tunes price resolution.
type OracleConfig struct {
	Timeout             duration `toml:"timeout"`
	CacheTTL            duration `toml:"cache_ttl"`
	EntranceRetries     int      `toml:"entrance_retries"`
	EntranceRetryWindow duration `toml:"entrance_retry_window"`
}

// ScheduleConfig holds the daily job triggers. Both crons are evaluated in
// Timezone.
type ScheduleConfig struct {
	BarrierCron  string   `toml:"barrier_cron"`
	RolloverCron string   `toml:"rollover_cron"`
	Timezone     string   `toml:"timezone"`
	LockTTL      duration `toml:"lock_ttl"`
}

// Location resolves Timezone.
func (s ScheduleConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return nil, fmt.Errorf("schedule: timezone %q: %w", s.Timezone, err)
	}
	return loc, nil
}

// TelegramConfig holds the bot credentials and chat flow tuning.
type TelegramConfig struct {
	Token           string   `toml:"token"`
	BaseURL         string   `toml:"base_url"`
	BroadcastChatID string   `toml:"broadcast_chat_id"`
	PollTimeout     duration `toml:"poll_timeout"`
	FormTTL         duration `toml:"form_ttl"`
	ChatLimit       int      `toml:"chat_limit"`
	ChatWindow      duration `toml:"chat_window"`
}

// NotifyConfig holds the optional mirror channel.
type NotifyConfig struct {
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	DiscordUsername   string   `toml:"discord_username"`
	Events            []string `toml:"events"`
	Timeout           duration `toml:"timeout"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	APIKey      string   `toml:"api_key"`
	RateLimit   int      `toml:"rate_limit"`
	RateWindow  duration `toml:"rate_window"`
}

// ArchiveConfig controls the monthly event export.
type ArchiveConfig struct {
	Enabled bool   `toml:"enabled"`
	Cron    string `toml:"cron"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with the values of config.example.toml.
func Defaults() Config {
	return Config{
		Database: DatabaseConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "barrierbot",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  1,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "barrierbot-archive",
			Prefix:         "archive",
			ForcePathStyle: true,
		},
		Alpaca: AlpacaConfig{
			Timeout:       duration{10 * time.Second},
			AssetCacheTTL: duration{time.Hour},
		},
		Crypto: CryptoConfig{
			BaseURL:       "https://api.binance.com",
			Timeout:       duration{10 * time.Second},
			RatePerSecond: 10,
			Burst:         5,
		},
		Oracle: OracleConfig{
			Timeout:             duration{10 * time.Second},
			CacheTTL:            duration{15 * time.Second},
			EntranceRetries:     3,
			EntranceRetryWindow: duration{30 * time.Second},
		},
		Schedule: ScheduleConfig{
			BarrierCron:  "0 9 * * *",
			RolloverCron: "5 9 * * *",
			Timezone:     "Asia/Singapore",
			LockTTL:      duration{10 * time.Minute},
		},
		Telegram: TelegramConfig{
			BaseURL:     "https://api.telegram.org",
			PollTimeout: duration{25 * time.Second},
			FormTTL:     duration{30 * time.Minute},
			ChatLimit:   20,
			ChatWindow:  duration{time.Minute},
		},
		Notify: NotifyConfig{
			DiscordUsername: "barrierbot",
			Events:          []string{"knock_out", "knock_in", "matured"},
			Timeout:         duration{10 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Archive: ArchiveConfig{
			Enabled: false,
			Cron:    "30 3 1 * *",
		},
		Mode:     "full",
		LogLevel: "info",
		Currency: "RM",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"full":      true,
	"scheduler": true,
	"bot":       true,
	"server":    true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// RunsScheduler reports whether the mode runs the daily jobs.
func (c *Config) RunsScheduler() bool { return c.Mode == "full" || c.Mode == "scheduler" }

// RunsBot reports whether the mode long-polls the chat bot.
func (c *Config) RunsBot() bool { return c.Mode == "full" || c.Mode == "bot" }

// RunsServer reports whether the mode serves the HTTP API.
func (c *Config) RunsServer() bool {
	return c.Mode == "server" || (c.Mode == "full" && c.Server.Enabled)
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if !validModes[c.Mode] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: full, scheduler, bot, server)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if strings.TrimSpace(c.Currency) == "" {
		errs = append(errs, "currency must not be empty")
	}

	// Database
	if strings.TrimSpace(c.Database.DSN) == "" {
		if c.Database.Host == "" {
			errs = append(errs, "database: host must not be empty (or set database.dsn)")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database: port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.Database == "" {
			errs = append(errs, "database: database must not be empty")
		}
	}
	if c.Database.PoolMaxConns < 1 {
		errs = append(errs, "database: pool_max_conns must be >= 1")
	}
	if c.Database.PoolMinConns < 0 || c.Database.PoolMinConns > c.Database.PoolMaxConns {
		errs = append(errs, "database: pool_min_conns must be between 0 and pool_max_conns")
	}

	// Redis
	if c.Redis.Addr == "" {
		errs = append(errs, "redis: addr must not be empty")
	}
	if c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// Oracle
	if c.Oracle.Timeout.Duration <= 0 {
		errs = append(errs, "oracle: timeout must be > 0")
	}
	if c.Oracle.CacheTTL.Duration < 0 {
		errs = append(errs, "oracle: cache_ttl must be >= 0")
	}
	if c.Oracle.EntranceRetries < 1 {
		errs = append(errs, "oracle: entrance_retries must be >= 1")
	}

	// Schedule
	loc, err := c.Schedule.Location()
	if err != nil {
		errs = append(errs, err.Error())
		loc = time.UTC
	}
	if c.RunsScheduler() {
		if _, err := pipeline.ParseSchedule(c.Schedule.BarrierCron, loc); err != nil {
			errs = append(errs, "schedule: barrier_cron: "+err.Error())
		}
		if _, err := pipeline.ParseSchedule(c.Schedule.RolloverCron, loc); err != nil {
			errs = append(errs, "schedule: rollover_cron: "+err.Error())
		}
		if c.Archive.Enabled {
			if _, err := pipeline.ParseSchedule(c.Archive.Cron, loc); err != nil {
				errs = append(errs, "archive: cron: "+err.Error())
			}
		}
	}
	if c.Schedule.LockTTL.Duration <= 0 {
		errs = append(errs, "schedule: lock_ttl must be > 0")
	}

	// Telegram: the scheduler notifies through it and the bot polls it.
	if (c.RunsScheduler() || c.RunsBot()) && strings.TrimSpace(c.Telegram.Token) == "" {
		errs = append(errs, "telegram: token is required for mode "+c.Mode)
	}

	// S3 is only needed for the archive.
	if c.Archive.Enabled {
		if c.S3.Endpoint == "" && c.S3.Region == "" {
			errs = append(errs, "s3: endpoint or region must be set when archive is enabled")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty when archive is enabled")
		}
	}

	// Server
	if c.RunsServer() {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
