// Package telemetry wires the daemon's ambient observability: a
// structured zap logger and a self-exposed Prometheus metrics
// registry. Neither is part of the decision engine's core contract;
// both are ambient-stack concerns carried from the surveyed pack (see
// DESIGN.md).
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewLogger builds a zap SugaredLogger at the given level ("debug",
// "info", "warn", "error"), logging structured lines to stderr.
func NewLogger(level string) (*zap.SugaredLogger, error) {
	zapLevel, err := zap.ParseAtomicLevel(level)
	if err != nil {
		zapLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zapLevel
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// Metrics is the set of gauges, counters, and histograms the scheduler
// updates once per tick.
type Metrics struct {
	Registry *prometheus.Registry

	TickTotal       *prometheus.CounterVec
	TickDuration    prometheus.Histogram
	FleetSize       *prometheus.GaugeVec
	OverheadStale   *prometheus.GaugeVec
	overheadTicksAt map[string]int
}

// NewMetrics constructs and registers the metrics family on a fresh
// registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		TickTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "autoscaler_tick_total",
			Help: "Count of scheduler ticks by outcome (ok, error).",
		}, []string{"outcome"}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "autoscaler_tick_duration_seconds",
			Help:    "Wall-clock duration of a scheduler tick.",
			Buckets: prometheus.DefBuckets,
		}),
		FleetSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaler_fleet_size",
			Help: "Current number of provisioned pods, by resource type.",
		}, []string{"type"}),
		OverheadStale: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoscaler_overhead_fit_stale_ticks",
			Help: "Recorded stats in a row after which the overhead model was not flagged as fitted, by resource type; stays 0 while the flag stays set.",
		}, []string{"type"}),
		overheadTicksAt: make(map[string]int),
	}

	reg.MustRegister(m.TickTotal, m.TickDuration, m.FleetSize, m.OverheadStale)
	return m
}

// Handler returns the HTTP handler to bind on the configured metrics
// address.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordOverheadFit updates the staleness gauge for typ: 0 if fresh
// was true this tick, otherwise incremented from the previous value.
func (m *Metrics) RecordOverheadFit(typ string, fresh bool) {
	if fresh {
		m.overheadTicksAt[typ] = 0
	} else {
		m.overheadTicksAt[typ]++
	}
	m.OverheadStale.WithLabelValues(typ).Set(float64(m.overheadTicksAt[typ]))
}
