// Command pricewatch watches the stocktrack.ca Best Buy drop feed and posts
// Discord alerts for genuine price drops.
//
// Usage:
//
//	pricewatch run --config config.json
//	pricewatch once
//	pricewatch cooldown list --limit 20
//	pricewatch cooldown prune
//	pricewatch test-webhook

// @title pricewatch status API
// @version 1.0.0
// @description Read-only view of the Best Buy price-drop monitor: last cycle summary and SKU fetch cooldowns.
// @host localhost:8090
// @BasePath /api/v1
// @schemes http
// @contact.name pricewatch
// @license.name MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/pricewatch/internal/api"
	"github.com/albapepper/pricewatch/internal/api/handler"
	"github.com/albapepper/pricewatch/internal/config"
	"github.com/albapepper/pricewatch/internal/notifications"
	"github.com/albapepper/pricewatch/internal/scheduler"
)

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	root := &cobra.Command{
		Use:           "pricewatch",
		Short:         "Best Buy price-drop monitor with Discord alerts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", config.DefaultPath, "Path to the JSON or YAML config file")

	root.AddCommand(runCmd(&cfgPath))
	root.AddCommand(onceCmd(&cfgPath))
	root.AddCommand(cooldownCmd(&cfgPath))
	root.AddCommand(testWebhookCmd(&cfgPath))
	return root
}

// withApp builds the app under a signal-aware context and tears it down
// when fn returns.
func withApp(cfgPath string, fn func(ctx context.Context, a *app) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfgPath)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

// --------------------------------------------------------------------------
// run command
// --------------------------------------------------------------------------

func runCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run price check cycles on the configured interval until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*cfgPath, func(ctx context.Context, a *app) error {
				var srv *http.Server
				if a.cfg.Server.Enabled {
					srv = startServer(a)
				}

				a.logger.Info("Starting StockTrack price monitor", "interval", a.cfg.Monitoring.Interval())
				scheduler.Run(ctx, a.cfg.Monitoring.Interval(), func(ctx context.Context) {
					a.monitor.RunCycle(ctx)
				}, a.logger)

				a.logger.Info("Shutting down...")
				if srv != nil {
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					defer cancel()
					if err := srv.Shutdown(shutdownCtx); err != nil {
						a.logger.Error("Shutdown error", "error", err)
					}
				}
				a.logger.Info("Monitor stopped")
				return nil
			})
		},
	}
}

func startServer(a *app) *http.Server {
	h := handler.New(a.monitor, a.upstream, a.backend.Name(), a.health)
	srv := api.NewServer(api.NewRouter(h, a.metrics.Handler(), a.cfg.Server), a.cfg.Server)

	go func() {
		a.logger.Info("Starting status API",
			"addr", srv.Addr,
			"docs", fmt.Sprintf("http://%s/docs/index.html", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Status API failed", "error", err)
		}
	}()
	return srv
}

// --------------------------------------------------------------------------
// once command
// --------------------------------------------------------------------------

func onceCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single price check cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*cfgPath, func(ctx context.Context, a *app) error {
				res := a.monitor.RunCycle(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), res.Summary())
				return nil
			})
		},
	}
}

// --------------------------------------------------------------------------
// cooldown command
// --------------------------------------------------------------------------

func cooldownCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cooldown",
		Short: "Inspect or prune persisted SKU fetch timestamps",
	}
	cmd.AddCommand(cooldownListCmd(cfgPath))
	cmd.AddCommand(cooldownPruneCmd(cfgPath))
	return cmd
}

func cooldownListCmd(cfgPath *string) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List SKU fetch timestamps, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*cfgPath, func(ctx context.Context, a *app) error {
				if !a.store.Enabled() {
					return errors.New("data persistence is disabled in the config")
				}
				if err := a.loadStore(ctx); err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				now := time.Now()
				for i, e := range a.store.Entries() {
					if limit > 0 && i >= limit {
						break
					}
					state := "expired"
					switch {
					case !e.Valid:
						state = "unreadable"
					case a.store.OnCooldown(e.SKU, now):
						state = "cooling"
					}
					fmt.Fprintf(out, "%-12s %-35s %s\n", e.SKU, e.Raw, state)
				}
				fmt.Fprintf(out, "%d entries (%s backend, %s window)\n",
					a.store.Len(), a.backend.Name(), a.store.Window())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum entries to print (0 = all)")
	return cmd
}

func cooldownPruneCmd(cfgPath *string) *cobra.Command {
	var maxEntries int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop the oldest SKU fetch timestamps beyond the entry cap",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*cfgPath, func(ctx context.Context, a *app) error {
				if !a.store.Enabled() {
					return errors.New("data persistence is disabled in the config")
				}
				if maxEntries <= 0 {
					maxEntries = a.cfg.Persistence.MaxEntries
				}
				if err := a.loadStore(ctx); err != nil {
					return fmt.Errorf("%w (nothing was pruned)", err)
				}

				removed := a.store.Prune(maxEntries)
				if err := a.backend.Save(ctx, a.store.Snapshot()); err != nil {
					return fmt.Errorf("save pruned timestamps: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries, %d remain\n", removed, a.store.Len())
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&maxEntries, "max", 0, "Entry cap (defaults to data_persistence.max_sku_entries)")
	return cmd
}

// --------------------------------------------------------------------------
// test-webhook command
// --------------------------------------------------------------------------

func testWebhookCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-webhook",
		Short: "Send a test message to the configured Discord webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(*cfgPath, func(ctx context.Context, a *app) error {
				msg := notifications.TestMessage(a.cfg.Discord, time.Now())
				if !a.notifier.Deliver(ctx, msg) {
					return errors.New("test message was not delivered, see logs")
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Test message delivered")
				return nil
			})
		},
	}
}
