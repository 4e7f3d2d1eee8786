// Package metrics defines the Prometheus metric collectors used across the
// service and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       *prometheus.HistogramVec
	SearchResultsCount  prometheus.Histogram
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CacheEvictionsTotal prometheus.Counter
	CacheEntries        prometheus.Gauge
	GatewayProbesTotal  *prometheus.CounterVec
	GatewayAvailable    *prometheus.GaugeVec
	GatewayLatency      *prometheus.GaugeVec
	StatsFlushesTotal   *prometheus.CounterVec
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by outcome (hit, miss, zero_result, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of grouped results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "response_cache_hits_total",
				Help: "Total number of response cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "response_cache_misses_total",
				Help: "Total number of response cache misses.",
			},
		),
		CacheEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "response_cache_evictions_total",
				Help: "Total number of LRU evictions from the response cache.",
			},
		),
		CacheEntries: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "response_cache_entries",
				Help: "Current number of entries in the response cache.",
			},
		),
		GatewayProbesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_probes_total",
				Help: "Total gateway health probes by host and result (ok, failure, rate_limited).",
			},
			[]string{"host", "result"},
		),
		GatewayAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_available",
				Help: "Gateway availability (1=available, 0=unavailable).",
			},
			[]string{"host"},
		),
		GatewayLatency: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gateway_latency_ms",
				Help: "Last observed gateway probe latency in milliseconds.",
			},
			[]string{"host"},
		),
		StatsFlushesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "stats_flushes_total",
				Help: "Total stats snapshot flushes by status.",
			},
			[]string{"status"},
		),
	}

	prometheus.MustRegister(
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CacheEvictionsTotal,
		m.CacheEntries,
		m.GatewayProbesTotal,
		m.GatewayAvailable,
		m.GatewayLatency,
		m.StatsFlushesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
