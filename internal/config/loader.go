package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies BARRIERBOT_* environment variable overrides, and
// returns the final Config. An empty path skips the file. The returned Config
// has NOT been validated; the caller should invoke Config.Validate() after
// Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known BARRIERBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "BARRIERBOT_DATABASE_DSN")
	setStr(&cfg.Database.DSN, "DATABASE_URL")
	setStr(&cfg.Database.Host, "BARRIERBOT_DATABASE_HOST")
	setInt(&cfg.Database.Port, "BARRIERBOT_DATABASE_PORT")
	setStr(&cfg.Database.Database, "BARRIERBOT_DATABASE_NAME")
	setStr(&cfg.Database.User, "BARRIERBOT_DATABASE_USER")
	setStr(&cfg.Database.Password, "BARRIERBOT_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "BARRIERBOT_DATABASE_SSL_MODE")
	setInt(&cfg.Database.PoolMaxConns, "BARRIERBOT_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "BARRIERBOT_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "BARRIERBOT_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "BARRIERBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "BARRIERBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "BARRIERBOT_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "BARRIERBOT_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "BARRIERBOT_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "BARRIERBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "BARRIERBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "BARRIERBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "BARRIERBOT_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "BARRIERBOT_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "BARRIERBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "BARRIERBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "BARRIERBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "BARRIERBOT_S3_FORCE_PATH_STYLE")

	// ── Price sources ──
	setStr(&cfg.Alpaca.APIKey, "BARRIERBOT_ALPACA_API_KEY")
	setStr(&cfg.Alpaca.APISecret, "BARRIERBOT_ALPACA_API_SECRET")
	setStr(&cfg.Alpaca.DataURL, "BARRIERBOT_ALPACA_DATA_URL")
	setStr(&cfg.Alpaca.TradingURL, "BARRIERBOT_ALPACA_TRADING_URL")
	setStr(&cfg.Crypto.BaseURL, "BARRIERBOT_CRYPTO_BASE_URL")
	setFloat64(&cfg.Crypto.RatePerSecond, "BARRIERBOT_CRYPTO_RATE_PER_SECOND")
	setDuration(&cfg.Oracle.Timeout, "BARRIERBOT_ORACLE_TIMEOUT")
	setDuration(&cfg.Oracle.CacheTTL, "BARRIERBOT_ORACLE_CACHE_TTL")
	setInt(&cfg.Oracle.EntranceRetries, "BARRIERBOT_ORACLE_ENTRANCE_RETRIES")

	// ── Schedule ──
	setStr(&cfg.Schedule.BarrierCron, "BARRIERBOT_SCHEDULE_BARRIER_CRON")
	setStr(&cfg.Schedule.RolloverCron, "BARRIERBOT_SCHEDULE_ROLLOVER_CRON")
	setStr(&cfg.Schedule.Timezone, "BARRIERBOT_SCHEDULE_TIMEZONE")
	setDuration(&cfg.Schedule.LockTTL, "BARRIERBOT_SCHEDULE_LOCK_TTL")

	// ── Telegram ──
	setStr(&cfg.Telegram.Token, "BARRIERBOT_TELEGRAM_TOKEN")
	setStr(&cfg.Telegram.BaseURL, "BARRIERBOT_TELEGRAM_BASE_URL")
	setStr(&cfg.Telegram.BroadcastChatID, "BARRIERBOT_TELEGRAM_BROADCAST_CHAT_ID")
	setDuration(&cfg.Telegram.PollTimeout, "BARRIERBOT_TELEGRAM_POLL_TIMEOUT")
	setDuration(&cfg.Telegram.FormTTL, "BARRIERBOT_TELEGRAM_FORM_TTL")

	// ── Notify ──
	setStr(&cfg.Notify.DiscordWebhookURL, "BARRIERBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "BARRIERBOT_NOTIFY_EVENTS")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "BARRIERBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "BARRIERBOT_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "BARRIERBOT_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "BARRIERBOT_SERVER_API_KEY")
	setInt(&cfg.Server.RateLimit, "BARRIERBOT_SERVER_RATE_LIMIT")

	// ── Archive ──
	setBool(&cfg.Archive.Enabled, "BARRIERBOT_ARCHIVE_ENABLED")
	setStr(&cfg.Archive.Cron, "BARRIERBOT_ARCHIVE_CRON")

	// ── Top-level ──
	setStr(&cfg.Mode, "BARRIERBOT_MODE")
	setStr(&cfg.LogLevel, "BARRIERBOT_LOG_LEVEL")
	setStr(&cfg.Currency, "BARRIERBOT_CURRENCY")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
