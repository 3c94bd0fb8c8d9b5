// Package metrics holds the Prometheus collectors for the trading loop.
//
//	pumpbot_decisions_total{action,trigger}
//	pumpbot_skips_total{reason}
//	pumpbot_outcomes_total{side,status,reason}
//	pumpbot_execution_seconds{side,backend}
//	pumpbot_tracked_positions
//	pumpbot_feed_reconnects_total
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/pumpbot/internal/domain"
)

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	decisions  *prometheus.CounterVec
	skips      *prometheus.CounterVec
	outcomes   *prometheus.CounterVec
	execution  *prometheus.HistogramVec
	tracked    prometheus.Gauge
	reconnects prometheus.Counter
}

// New creates and registers every collector, plus the Go runtime and
// process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pumpbot_decisions_total",
			Help: "Buy and sell decisions issued by the strategy engine.",
		}, []string{"action", "trigger"}),
		skips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pumpbot_skips_total",
			Help: "Events declined or executions skipped, by reason.",
		}, []string{"reason"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pumpbot_outcomes_total",
			Help: "Execution outcomes by side, status and reason.",
		}, []string{"side", "status", "reason"}),
		execution: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pumpbot_execution_seconds",
			Help:    "Time from decision to outcome.",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 40, 60},
		}, []string{"side", "backend"}),
		tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pumpbot_tracked_positions",
			Help: "Positions counting against the tracking capacity.",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pumpbot_feed_reconnects_total",
			Help: "Feed reconnections after a dropped connection.",
		}),
	}
	m.registry.MustRegister(
		m.decisions, m.skips, m.outcomes, m.execution, m.tracked, m.reconnects,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveDecision counts d. None decisions count as skips by reason.
func (m *Metrics) ObserveDecision(d domain.Decision) {
	if d.IsNone() {
		if d.Reason != "" {
			m.skips.WithLabelValues(string(d.Reason)).Inc()
		}
		return
	}
	m.decisions.WithLabelValues(string(d.Action), string(d.Trigger)).Inc()
}

// ObserveOutcome counts o and records how long it took.
func (m *Metrics) ObserveOutcome(o domain.Outcome, took time.Duration) {
	m.outcomes.WithLabelValues(string(o.Action), string(o.Status), string(o.Reason)).Inc()
	if o.Status == domain.OutcomeSkipped {
		m.skips.WithLabelValues(string(o.Reason)).Inc()
	}
	m.execution.WithLabelValues(string(o.Action), o.Backend).Observe(took.Seconds())
}

// SetTracked sets the tracked position gauge.
func (m *Metrics) SetTracked(n int) {
	m.tracked.Set(float64(n))
}

// FeedReconnected counts a feed reconnect.
func (m *Metrics) FeedReconnected() {
	m.reconnects.Inc()
}
