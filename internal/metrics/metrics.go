// Package metrics holds the Prometheus collectors for the monitor.
//
// A nil *Metrics is valid: every method is a no-op, so components can be
// built without metrics in tests and one-shot commands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is registered on its own registry rather than the global default.
type Metrics struct {
	Registry *prometheus.Registry

	Cycles          *prometheus.CounterVec
	CycleDuration   prometheus.Histogram
	Items           *prometheus.CounterVec
	UpstreamErrors  *prometheus.CounterVec
	Deliveries      *prometheus.CounterVec
	DeliveryRetries prometheus.Counter
	CooldownEntries prometheus.Gauge
	LastCycle       prometheus.Gauge
}

// New creates and registers all collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),

		Cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_cycles_total",
				Help: "Monitoring cycles by result (completed, aborted, panicked)",
			},
			[]string{"result"},
		),

		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "pricewatch_cycle_duration_seconds",
				Help:    "Wall time of a monitoring cycle",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 3600},
			},
		),

		Items: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_items_total",
				Help: "Items processed by outcome",
			},
			[]string{"outcome"},
		),

		UpstreamErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_upstream_errors_total",
				Help: "Failed upstream calls by error kind",
			},
			[]string{"kind"},
		),

		Deliveries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pricewatch_webhook_attempts_total",
				Help: "Webhook delivery attempts by outcome",
			},
			[]string{"outcome"},
		),

		DeliveryRetries: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "pricewatch_webhook_retries_total",
				Help: "Webhook delivery retries scheduled",
			},
		),

		CooldownEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricewatch_cooldown_entries",
				Help: "SKU fetch timestamps held after the last cycle",
			},
		),

		LastCycle: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "pricewatch_last_cycle_timestamp_seconds",
				Help: "Unix time the last cycle finished",
			},
		),
	}

	m.Registry.MustRegister(
		m.Cycles,
		m.CycleDuration,
		m.Items,
		m.UpstreamErrors,
		m.Deliveries,
		m.DeliveryRetries,
		m.CooldownEntries,
		m.LastCycle,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveCycle(result string, d time.Duration, cooldownEntries int) {
	if m == nil {
		return
	}
	m.Cycles.WithLabelValues(result).Inc()
	m.CycleDuration.Observe(d.Seconds())
	m.CooldownEntries.Set(float64(cooldownEntries))
	m.LastCycle.SetToCurrentTime()
}

func (m *Metrics) ObserveItem(outcome string) {
	if m == nil {
		return
	}
	m.Items.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveUpstreamError(kind string) {
	if m == nil {
		return
	}
	m.UpstreamErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDelivery(outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveRetry() {
	if m == nil {
		return
	}
	m.DeliveryRetries.Inc()
}
