// Package scheduler drives a job on a fixed interval until the context is
// cancelled.
package scheduler

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"
)

// Job is one unit of scheduled work. It should return promptly once ctx is
// cancelled.
type Job func(ctx context.Context)

// Run calls job once immediately and then on every tick of interval. It
// blocks until ctx is cancelled. A panicking job is logged and the loop
// carries on with the next tick.
//
// Ticks that fire while a job is still running are dropped by time.Ticker,
// so runs never overlap.
func Run(ctx context.Context, interval time.Duration, job Job, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = time.Minute
	}

	logger.Info("Scheduler started", "interval", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runSafe(ctx, job, logger)

	for {
		select {
		case <-ticker.C:
			if ctx.Err() != nil {
				continue
			}
			runSafe(ctx, job, logger)
			logger.Info("Next cycle scheduled", "in", interval)
		case <-ctx.Done():
			logger.Info("Scheduler stopped")
			return
		}
	}
}

func runSafe(ctx context.Context, job Job, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Scheduled job panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()
	job(ctx)
}
