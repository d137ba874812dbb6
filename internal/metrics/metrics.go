// Package metrics exposes the scanner's Prometheus instrumentation,
// registered on its own registry and served from the HTTP surface's
// /metrics endpoint via promhttp, the way the broker's gRPC gateway
// exposes a side-channel metrics path alongside its primary handlers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the scanner registers.
type Metrics struct {
	registry *prometheus.Registry

	ScanDuration   prometheus.Histogram
	ScanErrors     prometheus.Counter
	StoreSize      prometheus.Gauge
	BusDrops       prometheus.Counter
	AlertsEmitted  *prometheus.CounterVec
	SymbolsScanned prometheus.Gauge
}

// New constructs and registers the scanner's metrics on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ScanDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "smc_scanner",
			Name:      "scan_duration_seconds",
			Help:      "Duration of a full scan tick across all symbols.",
			Buckets:   prometheus.DefBuckets,
		}),
		ScanErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smc_scanner",
			Name:      "scan_errors_total",
			Help:      "Count of per-symbol scan failures across all ticks.",
		}),
		StoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "smc_scanner",
			Name:      "store_size",
			Help:      "Number of symbols currently tracked in the signal store.",
		}),
		BusDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "smc_scanner",
			Name:      "bus_drops_total",
			Help:      "Count of alerts dropped because a subscriber channel was full.",
		}),
		AlertsEmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "smc_scanner",
			Name:      "alerts_emitted_total",
			Help:      "Count of alerts emitted, labeled by type.",
		}, []string{"type"}),
		SymbolsScanned: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "smc_scanner",
			Name:      "symbols_scanned",
			Help:      "Number of symbols covered by the most recent scan tick.",
		}),
	}

	registry.MustRegister(
		m.ScanDuration,
		m.ScanErrors,
		m.StoreSize,
		m.BusDrops,
		m.AlertsEmitted,
		m.SymbolsScanned,
	)
	return m
}

// Handler returns the HTTP handler promhttp serves this registry's
// metrics on.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
