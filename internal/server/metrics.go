package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics holds the Prometheus collectors of a Server.
type metrics struct {
	queries       *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
	buildDuration *prometheus.HistogramVec
	cacheEvents   *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelgeo",
			Name:      "queries_total",
			Help:      "Lookups served, by product, strategy, operation and outcome.",
		}, []string{"product", "strategy", "operation", "outcome"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pixelgeo",
			Name:      "query_duration_seconds",
			Help:      "Lookup latency, excluding coding builds.",
			Buckets:   []float64{1e-6, 1e-5, 1e-4, 1e-3, 0.01, 0.1},
		}, []string{"operation"}),
		buildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pixelgeo",
			Name:      "build_duration_seconds",
			Help:      "Time to read a product and initialize its inverse coding.",
			Buckets:   []float64{0.01, 0.1, 0.3, 0.6, 1, 3, 6, 9, 30},
		}, []string{"strategy"}),
		cacheEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pixelgeo",
			Name:      "coding_cache_events_total",
			Help:      "Coding cache hits, builds and evictions.",
		}, []string{"event"}),
	}
	reg.MustRegister(m.queries, m.queryDuration, m.buildDuration, m.cacheEvents)
	return m
}
