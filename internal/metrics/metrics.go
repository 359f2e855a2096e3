// Package metrics holds the Prometheus collectors exported by cricbot.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	PassDuration  *prometheus.HistogramVec
	Passes        *prometheus.CounterVec
	EventFailures *prometheus.CounterVec
	Markets       *prometheus.CounterVec
	Matches       prometheus.Counter
	Bets          *prometheus.CounterVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		PassDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cricbot_pass_duration_seconds",
				Help:    "Duration of prefetch and betting passes",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"phase"},
		),
		Passes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cricbot_passes_total",
				Help: "Passes by phase and result",
			},
			[]string{"phase", "result"},
		),
		EventFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cricbot_event_failures_total",
				Help: "Per-event failures isolated during a pass",
			},
			[]string{"phase", "stage"},
		),
		Markets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cricbot_markets_normalized_total",
				Help: "Active market lines produced by normalization",
			},
			[]string{"category"},
		),
		Matches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cricbot_sanctioned_bets_total",
			Help: "Selections sanctioned by the matcher",
		}),
		Bets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cricbot_bets_total",
				Help: "Executed bets by terminal status",
			},
			[]string{"status", "dry_run"},
		),
	}
	m.registry.MustRegister(
		m.PassDuration, m.Passes, m.EventFailures, m.Markets, m.Matches, m.Bets,
		collectors.NewGoCollector(),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// ObservePass records a finished pass.
func (m *Metrics) ObservePass(phase string, start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Passes.WithLabelValues(phase, result).Inc()
	m.PassDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

func (m *Metrics) EventFailed(phase, stage string) {
	if m == nil {
		return
	}
	m.EventFailures.WithLabelValues(phase, stage).Inc()
}

func (m *Metrics) MarketNormalized(category string) {
	if m == nil {
		return
	}
	m.Markets.WithLabelValues(category).Inc()
}

func (m *Metrics) Matched(n int) {
	if m == nil {
		return
	}
	m.Matches.Add(float64(n))
}

func (m *Metrics) BetRecorded(status string, dryRun bool) {
	if m == nil {
		return
	}
	m.Bets.WithLabelValues(status, strconv.FormatBool(dryRun)).Inc()
}
