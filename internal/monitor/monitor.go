// Package monitor runs one price check cycle: fetch today's drops, gate each
// SKU on its fetch cooldown, compute history statistics, apply the
// eligibility rule, persist cooldown progress and then send the alerts.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/pricewatch/internal/config"
	"github.com/albapepper/pricewatch/internal/cooldown"
	"github.com/albapepper/pricewatch/internal/eligibility"
	"github.com/albapepper/pricewatch/internal/metrics"
	"github.com/albapepper/pricewatch/internal/notifications"
	"github.com/albapepper/pricewatch/internal/price"
	"github.com/albapepper/pricewatch/internal/provider/stocktrack"
)

// persistTimeout bounds the save that runs after the cycle context is gone.
const persistTimeout = 15 * time.Second

// dispatchTimeout bounds alert delivery after the cycle context is cancelled.
// Collected SKUs are already on cooldown, so their alerts are still sent.
const dispatchTimeout = 2 * time.Minute

// Upstream is the part of *stocktrack.Client the cycle uses.
type Upstream interface {
	TotalCount(ctx context.Context) (int, error)
	Items(ctx context.Context, n int) ([]stocktrack.Item, error)
	History(ctx context.Context, sku string) (*stocktrack.History, error)
}

// Notifier is the part of *notifications.Deliverer the cycle uses.
type Notifier interface {
	Deliver(ctx context.Context, msg notifications.WebhookMessage) bool
}

// Options carries the collaborators and settings of a Monitor. Store and
// Backend are required.
type Options struct {
	Store      *cooldown.Store
	Backend    cooldown.Backend
	MaxEntries int
	ItemDelay  time.Duration
	BaseURL    string
	Discord    config.DiscordConfig
	Metrics    *metrics.Metrics

	// Sleep and Now default to the real clock.
	Sleep notifications.Sleeper
	Now   func() time.Time
}

// Monitor owns the cooldown store between cycles. Only one cycle runs at a
// time; concurrent RunCycle calls wait for each other.
type Monitor struct {
	upstream Upstream
	notifier Notifier
	opts     Options
	logger   *slog.Logger

	cycleMu sync.Mutex

	mu   sync.RWMutex
	last *CycleResult
}

func New(up Upstream, n Notifier, opts Options, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Sleep == nil {
		opts.Sleep = notifications.SleepContext
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Backend == nil {
		opts.Backend = cooldown.NopBackend{}
	}
	return &Monitor{upstream: up, notifier: n, opts: opts, logger: logger}
}

// Store returns the cooldown store for read-only inspection.
func (m *Monitor) Store() *cooldown.Store { return m.opts.Store }

// LastResult returns the most recent finished cycle.
func (m *Monitor) LastResult() (CycleResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return CycleResult{}, false
	}
	return *m.last, true
}

// RunCycle performs one full cycle. It never panics and always persists the
// cooldown store, even when the item loop stops early or ctx is cancelled.
func (m *Monitor) RunCycle(ctx context.Context) (res CycleResult) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	res = CycleResult{RunID: uuid.NewString(), StartedAt: m.opts.Now()}
	logger := m.logger.With("run_id", res.RunID)
	logger.Info("Starting price check cycle")

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Price check cycle panicked", "panic", r)
			res.Panicked = true
		}
		res.Duration = m.opts.Now().Sub(res.StartedAt)
		m.opts.Metrics.ObserveCycle(res.Result(), res.Duration, m.opts.Store.Len())

		m.mu.Lock()
		last := res
		m.last = &last
		m.mu.Unlock()

		logger.Info("Price check cycle finished", "summary", res.Summary())
	}()

	_ = cooldown.LoadInto(ctx, m.opts.Backend, m.opts.Store, logger)

	payloads := m.collect(ctx, &res, logger)
	if res.Err != nil {
		logger.Error("Price check cycle stopped early", "error", res.Err)
	}

	m.persist(ctx, &res, logger)
	m.dispatch(ctx, payloads, &res, logger)
	return res
}

// collect walks the drop feed and returns the alerts to send. A panic in
// here is recorded on res so persistence still runs.
func (m *Monitor) collect(ctx context.Context, res *CycleResult, logger *slog.Logger) (payloads []notifications.Payload) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Item processing panicked", "panic", r)
			res.Panicked = true
			res.Err = fmt.Errorf("panic: %v", r)
		}
	}()

	total, err := m.upstream.TotalCount(ctx)
	if err != nil {
		m.upstreamError(err)
		res.Err = fmt.Errorf("fetch total count: %w", err)
		return nil
	}
	if total < 0 {
		res.Err = fmt.Errorf("invalid total count %d", total)
		return nil
	}
	if total == 0 {
		logger.Info("Drop feed is empty")
		return nil
	}

	logger.Info("Fetching drop feed", "total_count", total)
	items, err := m.upstream.Items(ctx, total)
	if err != nil {
		m.upstreamError(err)
		res.Err = fmt.Errorf("fetch items: %w", err)
		return nil
	}
	res.Items = len(items)
	logger.Info("Processing items", "count", len(items))

	for i, item := range items {
		if i > 0 {
			logger.Debug("Waiting before next item", "delay", m.opts.ItemDelay)
			if err := m.opts.Sleep(ctx, m.opts.ItemDelay); err != nil {
				res.Err = fmt.Errorf("interrupted before item %d of %d: %w", i+1, len(items), err)
				return payloads
			}
		}
		if err := ctx.Err(); err != nil {
			res.Err = fmt.Errorf("interrupted before item %d of %d: %w", i+1, len(items), err)
			return payloads
		}

		p, err := m.processItem(ctx, item, res, logger)
		if err != nil {
			res.Err = err
			return payloads
		}
		if p != nil {
			payloads = append(payloads, *p)
		}
	}
	return payloads
}

// processItem returns a payload for an eligible item. An error means the
// upstream is unhealthy and the rest of the feed should be skipped.
func (m *Monitor) processItem(ctx context.Context, item stocktrack.Item, res *CycleResult, logger *slog.Logger) (*notifications.Payload, error) {
	sku := item.Sku
	if sku == "" {
		logger.Warn("Item is missing SKU, skipping", "name", item.Name)
		res.Invalid++
		m.opts.Metrics.ObserveItem("invalid")
		return nil, nil
	}

	if m.opts.Store.OnCooldown(sku, m.opts.Now()) {
		logger.Info("SKU history fetched within cooldown, skipping", "sku", sku, "cooldown", m.opts.Store.Window())
		res.OnCooldown++
		m.opts.Metrics.ObserveItem("on_cooldown")
		return nil, nil
	}

	logger.Info("Fetching price history", "sku", sku)
	hist, err := m.upstream.History(ctx, sku)
	if err != nil {
		m.upstreamError(err)
		if stocktrack.IsKind(err, stocktrack.KindDecode) {
			logger.Warn("Unreadable price history, skipping item", "sku", sku, "error", err)
			res.HistoryErrors++
			m.opts.Metrics.ObserveItem("history_error")
			return nil, nil
		}
		return nil, fmt.Errorf("fetch history for %s: %w", sku, err)
	}
	m.opts.Store.RecordFetch(sku, m.opts.Now())
	res.Fetched++

	stats, ok := price.Compute(hist.Prices(), item.NewPrice, logger.With("sku", sku))
	if !ok {
		logger.Info("No historical price data", "sku", sku, "current", item.NewPrice)
		res.InsufficientData++
		m.opts.Metrics.ObserveItem("insufficient_data")
		return nil, nil
	}

	decision := eligibility.Decide(stats.Current, stats, item.InStock)
	if !decision.Notify {
		logger.Info("Notification criteria not met", "sku", sku, "detail", eligibility.Explain(stats.Current, stats, item.InStock))
		res.NotEligible++
		m.opts.Metrics.ObserveItem("not_eligible")
		return nil, nil
	}

	logger.Info("Item meets notification criteria", "sku", sku, "branch", string(decision.Branch), "reason", decision.Reason)
	res.Eligible++
	m.opts.Metrics.ObserveItem("eligible")
	p := notifications.Format(item, stats, decision.Reason, m.opts.BaseURL)
	return &p, nil
}

// persist prunes and saves the store. A cancelled cycle context is replaced
// by a short background one so progress is never lost on shutdown.
func (m *Monitor) persist(ctx context.Context, res *CycleResult, logger *slog.Logger) {
	store := m.opts.Store
	if !store.Enabled() {
		return
	}
	res.Pruned = store.Prune(m.opts.MaxEntries)

	saveCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		saveCtx, cancel = context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
	}
	if err := m.opts.Backend.Save(saveCtx, store.Snapshot()); err != nil {
		res.PersistErr = err
		logger.Error("Failed to save SKU fetch timestamps", "backend", m.opts.Backend.Name(), "error", err)
		return
	}
	logger.Debug("Saved SKU fetch timestamps", "backend", m.opts.Backend.Name(), "count", store.Len())
}

func (m *Monitor) dispatch(ctx context.Context, payloads []notifications.Payload, res *CycleResult, logger *slog.Logger) {
	if len(payloads) == 0 {
		logger.Info("No new items to notify in this run")
		return
	}

	// Cancelling the cycle only starts the dispatchTimeout clock.
	parent := ctx
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	defer cancel()
	stop := context.AfterFunc(parent, func() {
		logger.Warn("Cycle cancelled, sending collected alerts before stopping", "count", len(payloads), "timeout", dispatchTimeout)
		time.AfterFunc(dispatchTimeout, cancel)
	})
	defer stop()

	logger.Info("Sending price drop alerts", "count", len(payloads))
	for _, p := range payloads {
		if m.notifier.Deliver(ctx, p.Message(m.opts.Discord, m.opts.Now())) {
			res.Delivered++
			logger.Info("Sent price drop alert", "sku", p.Sku)
			continue
		}
		res.FailedDeliveries++
		logger.Error("Failed to send price drop alert", "sku", p.Sku)
	}
}

func (m *Monitor) upstreamError(err error) {
	kind := "unknown"
	var se *stocktrack.Error
	if errors.As(err, &se) {
		kind = string(se.Kind)
	}
	m.opts.Metrics.ObserveUpstreamError(kind)
}
