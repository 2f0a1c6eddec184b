package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var overrideKeys = []string{
	"DISCORD_WEBHOOK_URL",
	"PRICEWATCH_LOG_LEVEL",
	"PRICEWATCH_LOG_FILE",
	"PRICEWATCH_PERSISTENCE_ENABLED",
	"PRICEWATCH_PERSISTENCE_BACKEND",
	"DATABASE_URL",
	"REDIS_ADDR",
	"PRICEWATCH_INTERVAL_SECONDS",
	"PRICEWATCH_SERVER_PORT",
	"PRICEWATCH_CORS_ALLOW_ORIGINS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range overrideKeys {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func minimalJSON(dir string) string {
	return `{
  "logging": {"log_level": "DEBUG", "log_file_path": "` + filepath.ToSlash(filepath.Join(dir, "logs", "app.log")) + `"},
  "data_persistence": {
    "enabled": true,
    "sku_fetch_timestamps_file_path": "` + filepath.ToSlash(filepath.Join(dir, "state", "ts.json")) + `",
    "sku_fetch_cooldown_hours": 12
  },
  "monitoring": {
    "target_website_urls": {
      "drops_url": "https://stocktrack.ca/bb/drops.php",
      "history_url": "https://stocktrack.ca/bb/history.php",
      "bestbuy_base_url": "https://www.bestbuy.ca"
    }
  },
  "discord": {"discord_webhook_url": "https://discord.test/api/webhooks/1/abc"}
}`
}

func TestLoad_JSONWithDefaults(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(minimalJSON(dir)), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.True(t, cfg.Persistence.Enabled)
	assert.Equal(t, BackendFile, cfg.Persistence.Backend)
	assert.Equal(t, 12*time.Hour, cfg.Persistence.Cooldown())
	assert.Equal(t, 1000, cfg.Persistence.MaxEntries)
	assert.Equal(t, 15*time.Minute, cfg.Monitoring.Interval())
	assert.Equal(t, 10*time.Second, cfg.Monitoring.RequestDelay())
	assert.Equal(t, 30, cfg.Monitoring.UpstreamRequestsPerMinute)
	assert.Equal(t, "StockTrack Price Monitor", cfg.Discord.Username)
	assert.Equal(t, 3, cfg.Discord.MaxRetries)
	assert.Equal(t, 5*time.Second, cfg.Discord.RetryDelayBase())
	assert.Equal(t, "127.0.0.1:8090", cfg.Server.Addr())

	assert.DirExists(t, filepath.Join(dir, "logs"))
	assert.DirExists(t, filepath.Join(dir, "state"))
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "config.yaml", `
logging:
  log_level: warning
  log_file_path: ""
data_persistence:
  enabled: true
  backend: redis
  redis_addr: localhost:6379
  redis_db: 2
monitoring:
  price_check_interval_seconds: 60
  target_website_urls:
    drops_url: https://stocktrack.ca/bb/drops.php
    history_url: https://stocktrack.ca/bb/history.php
discord:
  discord_webhook_url: https://discord.test/hook
  webhook_max_retries: 5
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
	assert.Equal(t, BackendRedis, cfg.Persistence.Backend)
	assert.Equal(t, "localhost:6379", cfg.Persistence.RedisAddr)
	assert.Equal(t, 2, cfg.Persistence.RedisDB)
	assert.Equal(t, "pricewatch:sku_fetch_timestamps", cfg.Persistence.RedisKey)
	assert.Equal(t, time.Minute, cfg.Monitoring.Interval())
	assert.Equal(t, 5, cfg.Discord.MaxRetries)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(minimalJSON(dir)), 0o644))

	t.Setenv("DISCORD_WEBHOOK_URL", "https://discord.test/override")
	t.Setenv("PRICEWATCH_LOG_LEVEL", "error")
	t.Setenv("PRICEWATCH_PERSISTENCE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/pricewatch")
	t.Setenv("PRICEWATCH_INTERVAL_SECONDS", "120")
	t.Setenv("PRICEWATCH_SERVER_PORT", "9999")
	t.Setenv("PRICEWATCH_PERSISTENCE_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://discord.test/override", cfg.Discord.WebhookURL)
	assert.Equal(t, slog.LevelError, cfg.SlogLevel())
	assert.Equal(t, BackendPostgres, cfg.Persistence.Backend)
	assert.Equal(t, "postgres://localhost/pricewatch", cfg.Persistence.DatabaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Monitoring.Interval())
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.False(t, cfg.Persistence.Enabled)
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("invalid json", func(t *testing.T) {
		path := writeConfig(t, "config.json", `{"discord": `)
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("missing webhook", func(t *testing.T) {
		path := writeConfig(t, "config.json", `{"monitoring": {"target_website_urls": {"drops_url": "a", "history_url": "b"}}}`)
		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "discord_webhook_url")
	})
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Discord.WebhookURL = "https://discord.test/hook"
		c.Monitoring.URLs.DropsURL = "https://stocktrack.ca/bb/drops.php"
		c.Monitoring.URLs.HistoryURL = "https://stocktrack.ca/bb/history.php"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"ok", func(*Config) {}, ""},
		{"blank webhook", func(c *Config) { c.Discord.WebhookURL = "  " }, "discord_webhook_url"},
		{"webhook without scheme", func(c *Config) { c.Discord.WebhookURL = "discord.com/api/webhooks/1/x" }, "http or https"},
		{"ftp webhook", func(c *Config) { c.Discord.WebhookURL = "ftp://discord.com/api/webhooks/1/x" }, "http or https"},
		{"http webhook", func(c *Config) { c.Discord.WebhookURL = "http://127.0.0.1:8080/hook" }, ""},
		{"no drops url", func(c *Config) { c.Monitoring.URLs.DropsURL = "" }, "drops_url"},
		{"zero interval", func(c *Config) { c.Monitoring.IntervalSeconds = 0 }, "price_check_interval_seconds"},
		{"bad level", func(c *Config) { c.Logging.Level = "chatty" }, "log_level"},
		{"unknown backend", func(c *Config) { c.Persistence.Backend = "sqlite" }, "unknown data_persistence.backend"},
		{"postgres without url", func(c *Config) {
			c.Persistence.Enabled = true
			c.Persistence.Backend = BackendPostgres
		}, "database_url"},
		{"postgres disabled without url", func(c *Config) { c.Persistence.Backend = BackendPostgres }, ""},
		{"redis without addr", func(c *Config) {
			c.Persistence.Enabled = true
			c.Persistence.Backend = BackendRedis
		}, "redis_addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"debug":    slog.LevelDebug,
		"INFO":     slog.LevelInfo,
		"":         slog.LevelInfo,
		"Warning":  slog.LevelWarn,
		"WARN":     slog.LevelWarn,
		"error":    slog.LevelError,
		"CRITICAL": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestEnvList(t *testing.T) {
	t.Setenv("PW_TEST_LIST", " a , ,b,")
	assert.Equal(t, []string{"a", "b"}, envList("PW_TEST_LIST", nil))
	t.Setenv("PW_TEST_LIST", " , ")
	assert.Equal(t, []string{"x"}, envList("PW_TEST_LIST", []string{"x"}))
}
