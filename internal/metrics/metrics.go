// Package metrics provides Prometheus metrics collection for the UIN
// lifecycle engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every Prometheus collector the engine exposes.
type Metrics struct {
	GenerateTotal    *prometheus.CounterVec
	GenerateDuration *prometheus.HistogramVec

	TransitionsTotal *prometheus.CounterVec

	PoolSizeByStatus *prometheus.GaugeVec
	ClaimWaitSeconds prometheus.Histogram

	EntropyFallbacksTotal *prometheus.CounterVec
	EntropyDrawDuration   *prometheus.HistogramVec

	SecretCacheHitTotal  prometheus.Counter
	SecretCacheMissTotal prometheus.Counter

	StorageQueriesTotal   *prometheus.CounterVec
	StorageQueryDuration  *prometheus.HistogramVec
}

// New creates a Metrics instance registered against the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Metrics instance registered against registerer.
// A nil registerer skips registration entirely, which test code uses to
// avoid "duplicate metrics collector registration" panics across runs.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		GenerateTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uin_generate_total",
				Help: "Total number of UIN generation calls by mode and outcome.",
			},
			[]string{"mode", "outcome"},
		),
		GenerateDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uin_generate_duration_seconds",
				Help:    "UIN generation latency in seconds by mode.",
				Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
			},
			[]string{"mode"},
		),
		TransitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uin_lifecycle_transitions_total",
				Help: "Total number of lifecycle state transitions by from/to state.",
			},
			[]string{"from", "to"},
		),
		PoolSizeByStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "uin_pool_size",
				Help: "Current pool size by status.",
			},
			[]string{"status"},
		),
		ClaimWaitSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "uin_claim_wait_seconds",
				Help:    "Time spent acquiring a row lock during claim.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
			},
		),
		EntropyFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uin_entropy_fallbacks_total",
				Help: "Total number of entropy provider fallbacks by from/to provider.",
			},
			[]string{"from", "to"},
		),
		EntropyDrawDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uin_entropy_draw_duration_seconds",
				Help:    "Entropy draw latency in seconds by provider.",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
			},
			[]string{"provider"},
		),
		SecretCacheHitTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "uin_secret_cache_hits_total",
				Help: "Total number of sector secret cache hits.",
			},
		),
		SecretCacheMissTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "uin_secret_cache_misses_total",
				Help: "Total number of sector secret cache misses.",
			},
		),
		StorageQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "uin_storage_queries_total",
				Help: "Total number of pool store queries by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		StorageQueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "uin_storage_query_duration_seconds",
				Help:    "Pool store query latency in seconds by operation.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"operation"},
		),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.GenerateTotal,
			m.GenerateDuration,
			m.TransitionsTotal,
			m.PoolSizeByStatus,
			m.ClaimWaitSeconds,
			m.EntropyFallbacksTotal,
			m.EntropyDrawDuration,
			m.SecretCacheHitTotal,
			m.SecretCacheMissTotal,
			m.StorageQueriesTotal,
			m.StorageQueryDuration,
		)
	}

	return m
}

// RecordGenerate records the outcome and latency of a generation call.
func (m *Metrics) RecordGenerate(mode, outcome string, duration time.Duration) {
	m.GenerateTotal.WithLabelValues(mode, outcome).Inc()
	m.GenerateDuration.WithLabelValues(mode).Observe(duration.Seconds())
}

// RecordTransition records a lifecycle state transition.
func (m *Metrics) RecordTransition(from, to string) {
	m.TransitionsTotal.WithLabelValues(from, to).Inc()
}

// SetPoolSize sets the current pool gauge for status.
func (m *Metrics) SetPoolSize(status string, count int) {
	m.PoolSizeByStatus.WithLabelValues(status).Set(float64(count))
}

// RecordClaimWait records time spent acquiring a claim lock.
func (m *Metrics) RecordClaimWait(duration time.Duration) {
	m.ClaimWaitSeconds.Observe(duration.Seconds())
}

// RecordEntropyFallback records a provider demotion.
func (m *Metrics) RecordEntropyFallback(from, to string) {
	m.EntropyFallbacksTotal.WithLabelValues(from, to).Inc()
}

// RecordEntropyDraw records the latency of a single entropy draw.
func (m *Metrics) RecordEntropyDraw(provider string, duration time.Duration) {
	m.EntropyDrawDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordSecretCacheHit increments the sector secret cache hit counter.
func (m *Metrics) RecordSecretCacheHit() { m.SecretCacheHitTotal.Inc() }

// RecordSecretCacheMiss increments the sector secret cache miss counter.
func (m *Metrics) RecordSecretCacheMiss() { m.SecretCacheMissTotal.Inc() }

// RecordStorageQuery records the outcome and latency of a pool store query.
func (m *Metrics) RecordStorageQuery(operation, outcome string, duration time.Duration) {
	m.StorageQueriesTotal.WithLabelValues(operation, outcome).Inc()
	m.StorageQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
