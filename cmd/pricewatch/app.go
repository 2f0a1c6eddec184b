package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/go-redis/redis/v8"

	"github.com/albapepper/pricewatch/internal/api/handler"
	"github.com/albapepper/pricewatch/internal/config"
	"github.com/albapepper/pricewatch/internal/cooldown"
	"github.com/albapepper/pricewatch/internal/db"
	"github.com/albapepper/pricewatch/internal/metrics"
	"github.com/albapepper/pricewatch/internal/monitor"
	"github.com/albapepper/pricewatch/internal/notifications"
	"github.com/albapepper/pricewatch/internal/provider/stocktrack"
)

// app is everything a subcommand needs, built from one config file.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	store    *cooldown.Store
	backend  cooldown.Backend
	health   handler.HealthFunc
	upstream *stocktrack.Client
	notifier *notifications.Deliverer
	monitor  *monitor.Monitor

	closers []func()
}

// newApp loads the config and wires every component. Close must be called
// when the command finishes.
func newApp(ctx context.Context, cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, metrics: metrics.New()}
	if err := a.setupLogging(); err != nil {
		return nil, err
	}
	a.logger.Info("Configuration loaded",
		"path", cfg.Path,
		"persistence", cfg.Persistence.Enabled,
		"backend", cfg.Persistence.Backend,
		"interval", cfg.Monitoring.Interval())

	a.store = cooldown.New(cfg.Persistence.Cooldown(), cfg.Persistence.Enabled, a.logger)
	if err := a.setupBackend(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.upstream = stocktrack.NewClient(stocktrack.Options{
		DropsURL:          cfg.Monitoring.URLs.DropsURL,
		HistoryURL:        cfg.Monitoring.URLs.HistoryURL,
		UserAgent:         cfg.Monitoring.UserAgent,
		Timeout:           cfg.Monitoring.RequestTimeout(),
		RequestsPerMinute: cfg.Monitoring.UpstreamRequestsPerMinute,
	}, a.logger)

	a.notifier = notifications.NewDeliverer(
		notifications.NewWebhookTransport(cfg.Discord.WebhookURL, cfg.Discord.RequestTimeout()),
		notifications.DelivererOptions{
			MaxRetries: cfg.Discord.MaxRetries,
			RetryBase:  cfg.Discord.RetryDelayBase(),
			Metrics:    a.metrics,
		},
		a.logger,
	)

	a.monitor = monitor.New(a.upstream, a.notifier, monitor.Options{
		Store:      a.store,
		Backend:    a.backend,
		MaxEntries: cfg.Persistence.MaxEntries,
		ItemDelay:  cfg.Monitoring.RequestDelay(),
		BaseURL:    cfg.Monitoring.URLs.BestBuyBaseURL,
		Discord:    cfg.Discord,
		Metrics:    a.metrics,
	}, a.logger)

	return a, nil
}

// setupLogging writes text logs to stdout and to the configured log file.
func (a *app) setupLogging() error {
	var out io.Writer = os.Stdout
	if a.cfg.Logging.File != "" {
		f, err := os.OpenFile(a.cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %s: %w", a.cfg.Logging.File, err)
		}
		a.closers = append(a.closers, func() { f.Close() })
		out = io.MultiWriter(os.Stdout, f)
	}
	a.logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: a.cfg.SlogLevel()}))
	slog.SetDefault(a.logger)
	return nil
}

// setupBackend picks where the cooldown store is persisted.
func (a *app) setupBackend(ctx context.Context) error {
	p := a.cfg.Persistence
	if !p.Enabled {
		a.backend = cooldown.NopBackend{}
		a.logger.Info("Data persistence disabled, SKU cooldowns are not kept between runs")
		return nil
	}

	switch p.Backend {
	case config.BackendPostgres:
		a.logger.Info("Connecting to database...")
		pool, err := db.New(ctx, p)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.backend = cooldown.NewPostgresBackend(pool.Pool)
		a.health = pool.HealthCheck
		a.logger.Info("Database connected", "min_conns", p.DBPoolMinConns, "max_conns", p.DBPoolMaxConns)

	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{Addr: p.RedisAddr, DB: p.RedisDB})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return fmt.Errorf("connect to redis %s: %w", p.RedisAddr, err)
		}
		a.closers = append(a.closers, func() { client.Close() })
		a.backend = cooldown.NewRedisBackend(client, p.RedisKey)
		a.health = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		a.logger.Info("Redis connected", "addr", p.RedisAddr, "key", p.RedisKey)

	default:
		a.backend = cooldown.NewFileBackend(p.TimestampsFile)
		a.logger.Info("Using file persistence", "path", p.TimestampsFile)
	}
	return nil
}

// loadStore fills the store from the backend for the inspection commands.
func (a *app) loadStore(ctx context.Context) error {
	if err := cooldown.LoadInto(ctx, a.backend, a.store, a.logger); err != nil {
		return fmt.Errorf("read SKU fetch timestamps: %w", err)
	}
	return nil
}

// Close releases connections and the log file, in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
