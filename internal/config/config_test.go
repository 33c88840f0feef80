package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	cfg := Defaults()
	cfg.Telegram.Token = "123:abc"
	return cfg
}

func TestDefaults_Validate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0 9 * * *", cfg.Schedule.BarrierCron)
	assert.Equal(t, "5 9 * * *", cfg.Schedule.RolloverCron)
	assert.Equal(t, "RM", cfg.Currency)
	assert.Equal(t, 15*time.Second, cfg.Oracle.CacheTTL.Duration)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "trade"
	cfg.LogLevel = "loud"
	cfg.Schedule.Timezone = "Mars/Olympus"
	cfg.Redis.Addr = ""

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `unknown mode "trade"`)
	assert.Contains(t, msg, `unknown log_level "loud"`)
	assert.Contains(t, msg, "Mars/Olympus")
	assert.Contains(t, msg, "redis: addr")
}

func TestValidate_ModeRequirements(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "server"
	require.NoError(t, cfg.Validate(), "server mode does not need a bot token")

	cfg.Mode = "scheduler"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram: token")

	cfg = validConfig()
	cfg.Schedule.BarrierCron = "61 9 * * *"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "barrier_cron")

	cfg = validConfig()
	cfg.Archive.Enabled = true
	cfg.S3.Bucket = ""
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s3: bucket")
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "bot"
currency = "USD"

[schedule]
barrier_cron = "30 8 * * 1-5"
lock_ttl = "2m"

[telegram]
token = "file-token"
broadcast_chat_id = "-100200"
`), 0o600))

	t.Setenv("BARRIERBOT_TELEGRAM_TOKEN", "env-token")
	t.Setenv("BARRIERBOT_SERVER_CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("BARRIERBOT_ORACLE_CACHE_TTL", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "bot", cfg.Mode)
	assert.Equal(t, "USD", cfg.Currency)
	assert.Equal(t, "30 8 * * 1-5", cfg.Schedule.BarrierCron)
	assert.Equal(t, "5 9 * * *", cfg.Schedule.RolloverCron)
	assert.Equal(t, 2*time.Minute, cfg.Schedule.LockTTL.Duration)
	assert.Equal(t, "env-token", cfg.Telegram.Token)
	assert.Equal(t, "-100200", cfg.Telegram.BroadcastChatID)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 45*time.Second, cfg.Oracle.CacheTTL.Duration)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte(`[schedule]
lock_ttl = "soon"`), 0o600))

	_, err := Load(path)
	require.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Password = "pw"
	cfg.Alpaca.APISecret = "s"
	cfg.Server.APIKey = "k"

	out := RedactedConfig(&cfg)
	assert.Equal(t, redacted, out.Telegram.Token)
	assert.Equal(t, redacted, out.Database.Password)
	assert.Equal(t, redacted, out.Alpaca.APISecret)
	assert.Equal(t, redacted, out.Server.APIKey)
	assert.Empty(t, out.Notify.DiscordWebhookURL)
	assert.Equal(t, "123:abc", cfg.Telegram.Token)

	out.Server.CORSOrigins[0] = "changed"
	assert.NotEqual(t, "changed", cfg.Server.CORSOrigins[0])
}
