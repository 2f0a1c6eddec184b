package notifications

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/albapepper/pricewatch/internal/metrics"
)

// maxRetryAfter caps how long a Retry-After hint can hold a delivery.
const maxRetryAfter = time.Hour

// Sleeper blocks for d or until ctx is done, returning ctx.Err() in the
// latter case.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// DelivererOptions configures retries. MaxRetries below 1 is treated as 1.
type DelivererOptions struct {
	MaxRetries int
	RetryBase  time.Duration
	Sleep      Sleeper
	Metrics    *metrics.Metrics
}

// Deliverer sends webhook messages with bounded retries.
type Deliverer struct {
	transport  Transport
	maxRetries int
	retryBase  time.Duration
	sleep      Sleeper
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewDeliverer(t Transport, opts DelivererOptions, logger *slog.Logger) *Deliverer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}
	return &Deliverer{
		transport:  t,
		maxRetries: max(opts.MaxRetries, 1),
		retryBase:  opts.RetryBase,
		sleep:      opts.Sleep,
		metrics:    opts.Metrics,
		logger:     logger,
	}
}

// Deliver posts msg, retrying rate limits and transient failures up to
// MaxRetries attempts in total. Fatal responses are not retried. It reports
// whether the message was accepted and never panics.
func (d *Deliverer) Deliver(ctx context.Context, msg WebhookMessage) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Webhook delivery panicked", "panic", r)
			ok = false
		}
	}()

	for i := 0; i < d.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			d.logger.Warn("Webhook delivery cancelled", "attempt", d.attempt(i), "error", err)
			return false
		}

		res := d.transport.Post(ctx, msg)
		d.metrics.ObserveDelivery(res.Outcome.String())

		var wait time.Duration
		switch res.Outcome {
		case OutcomeSuccess:
			d.logger.Info("Sent webhook message", "status", res.StatusCode, "attempt", d.attempt(i))
			return true

		case OutcomeRateLimited:
			wait = d.rateLimitWait(i, res.RetryAfter)
			d.logger.Warn("Webhook rate limited", "attempt", d.attempt(i), "retry_after", res.RetryAfter, "wait", wait, "body", res.Body)

		case OutcomeTransient:
			wait = d.backoff(i)
			d.logger.Error("Webhook request failed", "attempt", d.attempt(i), "error", res.Err)

		default:
			d.logger.Error("Webhook rejected message", "attempt", d.attempt(i), "status", res.StatusCode, "error", res.Err)
			return false
		}

		if i+1 >= d.maxRetries {
			d.logger.Error("Webhook max retries reached", "max_retries", d.maxRetries, "last_outcome", res.Outcome.String())
			return false
		}

		d.metrics.ObserveRetry()
		d.logger.Info("Retrying webhook message", "attempt", d.attempt(i+1), "wait", wait)
		if err := d.sleep(ctx, wait); err != nil {
			d.logger.Warn("Webhook retry wait interrupted", "error", err)
			return false
		}
	}
	return false
}

// rateLimitWait honours Retry-After (float seconds, truncated, plus one
// second, capped at maxRetryAfter) and falls back to exponential backoff.
func (d *Deliverer) rateLimitWait(i int, header string) time.Duration {
	fallback := d.backoff(i)
	header = strings.TrimSpace(header)
	if header == "" {
		return fallback
	}
	secs, err := strconv.ParseFloat(header, 64)
	if err != nil || math.IsNaN(secs) || secs < 0 {
		d.logger.Warn("Unparseable Retry-After header, using backoff", "retry_after", header, "wait", fallback)
		return fallback
	}
	if secs+1 >= maxRetryAfter.Seconds() {
		d.logger.Warn("Retry-After header too large, capping", "retry_after", header, "wait", maxRetryAfter)
		return maxRetryAfter
	}
	return time.Duration(int64(secs)+1) * time.Second
}

func (d *Deliverer) backoff(i int) time.Duration {
	return d.retryBase * time.Duration(1<<i)
}

func (d *Deliverer) attempt(i int) string {
	return fmt.Sprintf("%d/%d", i+1, d.maxRetries)
}
