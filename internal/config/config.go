// Package config provides centralized configuration loaded from a JSON or
// YAML file, overlaid with environment variables. Shared by every
// cmd/pricewatch subcommand.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when no --config flag is given.
const DefaultPath = "config.json"

// Persistence backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// --------------------------------------------------------------------------
// Config struct, one field per config file section
// --------------------------------------------------------------------------

type Config struct {
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	Persistence PersistenceConfig `json:"data_persistence" yaml:"data_persistence"`
	Monitoring  MonitoringConfig  `json:"monitoring" yaml:"monitoring"`
	Discord     DiscordConfig     `json:"discord" yaml:"discord"`
	Server      ServerConfig      `json:"server" yaml:"server"`

	// Path is the file the config was read from.
	Path string `json:"-" yaml:"-"`
}

type LoggingConfig struct {
	Level string `json:"log_level" yaml:"log_level"`
	File  string `json:"log_file_path" yaml:"log_file_path"`
}

type PersistenceConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	Backend        string  `json:"backend" yaml:"backend"`
	TimestampsFile string  `json:"sku_fetch_timestamps_file_path" yaml:"sku_fetch_timestamps_file_path"`
	CooldownHours  float64 `json:"sku_fetch_cooldown_hours" yaml:"sku_fetch_cooldown_hours"`
	MaxEntries     int     `json:"max_sku_entries" yaml:"max_sku_entries"`

	// Postgres
	DatabaseURL    string `json:"database_url" yaml:"database_url"`
	DBPoolMinConns int    `json:"db_pool_min_conns" yaml:"db_pool_min_conns"`
	DBPoolMaxConns int    `json:"db_pool_max_conns" yaml:"db_pool_max_conns"`

	// Redis
	RedisAddr string `json:"redis_addr" yaml:"redis_addr"`
	RedisDB   int    `json:"redis_db" yaml:"redis_db"`
	RedisKey  string `json:"redis_key" yaml:"redis_key"`
}

// Cooldown returns the fetch cooldown window.
func (p PersistenceConfig) Cooldown() time.Duration {
	return seconds(p.CooldownHours * 3600)
}

type TargetURLs struct {
	DropsURL       string `json:"drops_url" yaml:"drops_url"`
	HistoryURL     string `json:"history_url" yaml:"history_url"`
	BestBuyBaseURL string `json:"bestbuy_base_url" yaml:"bestbuy_base_url"`
}

type MonitoringConfig struct {
	IntervalSeconds           float64    `json:"price_check_interval_seconds" yaml:"price_check_interval_seconds"`
	RequestDelaySeconds       float64    `json:"request_delay_seconds" yaml:"request_delay_seconds"`
	RequestTimeoutSeconds     float64    `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	UpstreamRequestsPerMinute int        `json:"upstream_requests_per_minute" yaml:"upstream_requests_per_minute"`
	UserAgent                 string     `json:"user_agent" yaml:"user_agent"`
	URLs                      TargetURLs `json:"target_website_urls" yaml:"target_website_urls"`
}

func (m MonitoringConfig) Interval() time.Duration       { return seconds(m.IntervalSeconds) }
func (m MonitoringConfig) RequestDelay() time.Duration   { return seconds(m.RequestDelaySeconds) }
func (m MonitoringConfig) RequestTimeout() time.Duration { return seconds(m.RequestTimeoutSeconds) }

type DiscordConfig struct {
	WebhookURL            string  `json:"discord_webhook_url" yaml:"discord_webhook_url"`
	Username              string  `json:"webhook_username" yaml:"webhook_username"`
	AvatarURL             string  `json:"webhook_avatar_url" yaml:"webhook_avatar_url"`
	RequestTimeoutSeconds float64 `json:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	MaxRetries            int     `json:"webhook_max_retries" yaml:"webhook_max_retries"`
	RetryDelayBaseSeconds float64 `json:"webhook_retry_delay_base_seconds" yaml:"webhook_retry_delay_base_seconds"`
}

func (d DiscordConfig) RequestTimeout() time.Duration { return seconds(d.RequestTimeoutSeconds) }
func (d DiscordConfig) RetryDelayBase() time.Duration { return seconds(d.RetryDelayBaseSeconds) }

type ServerConfig struct {
	Enabled          bool     `json:"enabled" yaml:"enabled"`
	Host             string   `json:"host" yaml:"host"`
	Port             int      `json:"port" yaml:"port"`
	CORSAllowOrigins []string `json:"cors_allow_origins" yaml:"cors_allow_origins"`

	// Rate limiting
	RateLimitEnabled  bool `json:"rate_limit_enabled" yaml:"rate_limit_enabled"`
	RateLimitRequests int  `json:"rate_limit_requests" yaml:"rate_limit_requests"`
}

// Addr returns host:port for the status server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Default returns the configuration used for every key the file omits.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level: "INFO",
			File:  "data/app.log",
		},
		Persistence: PersistenceConfig{
			Enabled:        false,
			Backend:        BackendFile,
			TimestampsFile: "data/sku_fetch_timestamps.json",
			CooldownHours:  24,
			MaxEntries:     1000,
			DBPoolMinConns: 1,
			DBPoolMaxConns: 4,
			RedisKey:       "pricewatch:sku_fetch_timestamps",
		},
		Monitoring: MonitoringConfig{
			IntervalSeconds:           900,
			RequestDelaySeconds:       10,
			RequestTimeoutSeconds:     10,
			UpstreamRequestsPerMinute: 30,
			UserAgent:                 "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36",
		},
		Discord: DiscordConfig{
			Username:              "StockTrack Price Monitor",
			RequestTimeoutSeconds: 10,
			MaxRetries:            3,
			RetryDelayBaseSeconds: 5,
		},
		Server: ServerConfig{
			Enabled:           false,
			Host:              "127.0.0.1",
			Port:              8090,
			RateLimitEnabled:  true,
			RateLimitRequests: 60,
		},
	}
}

// Load reads the config file at path (DefaultPath if empty), fills defaults,
// applies environment overrides, validates the result and creates the
// directories the log and timestamps files live in.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file %s not found, create it from config.sample.json", path)
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Path = path

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.ensureDirs(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes a config document over the defaults. ext selects the format:
// ".yaml" and ".yml" are YAML, anything else is JSON.
func Parse(data []byte, ext string) (*Config, error) {
	cfg := Default()
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	}
	return cfg, nil
}

// Validate reports the first setting that prevents the monitor from running.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Discord.WebhookURL) == "" {
		return errors.New("discord.discord_webhook_url must be set (or DISCORD_WEBHOOK_URL)")
	}
	if u, err := url.Parse(c.Discord.WebhookURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("discord.discord_webhook_url must be an absolute http or https URL")
	}
	if c.Monitoring.URLs.DropsURL == "" || c.Monitoring.URLs.HistoryURL == "" {
		return errors.New("monitoring.target_website_urls.drops_url and history_url must be set")
	}
	if c.Monitoring.IntervalSeconds <= 0 {
		return fmt.Errorf("monitoring.price_check_interval_seconds must be positive, got %v", c.Monitoring.IntervalSeconds)
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	switch c.Persistence.Backend {
	case BackendFile:
	case BackendPostgres:
		if c.Persistence.Enabled && c.Persistence.DatabaseURL == "" {
			return errors.New("data_persistence.database_url must be set for the postgres backend (or DATABASE_URL)")
		}
	case BackendRedis:
		if c.Persistence.Enabled && c.Persistence.RedisAddr == "" {
			return errors.New("data_persistence.redis_addr must be set for the redis backend (or REDIS_ADDR)")
		}
	default:
		return fmt.Errorf("unknown data_persistence.backend %q (want file, postgres or redis)", c.Persistence.Backend)
	}
	return nil
}

// SlogLevel returns the configured log level. Validate has already checked it.
func (c *Config) SlogLevel() slog.Level {
	lvl, _ := ParseLevel(c.Logging.Level)
	return lvl
}

// ParseLevel maps DEBUG/INFO/WARNING/ERROR (any case) to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR", "CRITICAL":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown logging.log_level %q", s)
}

func (c *Config) applyEnv() {
	c.Discord.WebhookURL = envOr("DISCORD_WEBHOOK_URL", c.Discord.WebhookURL)
	c.Logging.Level = envOr("PRICEWATCH_LOG_LEVEL", c.Logging.Level)
	c.Logging.File = envOr("PRICEWATCH_LOG_FILE", c.Logging.File)
	c.Persistence.Enabled = envBool("PRICEWATCH_PERSISTENCE_ENABLED", c.Persistence.Enabled)
	c.Persistence.Backend = envOr("PRICEWATCH_PERSISTENCE_BACKEND", c.Persistence.Backend)
	c.Persistence.DatabaseURL = envOr("DATABASE_URL", c.Persistence.DatabaseURL)
	c.Persistence.RedisAddr = envOr("REDIS_ADDR", c.Persistence.RedisAddr)
	if n := envInt("PRICEWATCH_INTERVAL_SECONDS", 0); n > 0 {
		c.Monitoring.IntervalSeconds = float64(n)
	}
	c.Server.Port = envInt("PRICEWATCH_SERVER_PORT", c.Server.Port)
	c.Server.CORSAllowOrigins = envList("PRICEWATCH_CORS_ALLOW_ORIGINS", c.Server.CORSAllowOrigins)
}

func (c *Config) ensureDirs() error {
	paths := []string{c.Logging.File}
	if c.Persistence.Enabled && c.Persistence.Backend == BackendFile {
		paths = append(paths, c.Persistence.TimestampsFile)
	}
	for _, p := range paths {
		if p == "" {
			continue
		}
		dir := filepath.Dir(p)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
