// Package metrics exposes recommendation engine events as Prometheus metrics.
package metrics

import (
	"time"

	"github.com/poiesic/plexrec/core"
	"github.com/poiesic/plexrec/recommend"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "plexrec"

// Monitor records engine events into Prometheus collectors.
type Monitor struct {
	CacheHits     *prometheus.CounterVec
	CacheMisses   *prometheus.CounterVec
	CachedRows    *prometheus.GaugeVec
	Builds        *prometheus.CounterVec
	BuildDuration *prometheus.HistogramVec
	BuildsActive  *prometheus.GaugeVec
	Queries       *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

var _ recommend.Monitor = (*Monitor)(nil)

// NewMonitor creates the collectors and registers them on reg.
func NewMonitor(reg prometheus.Registerer) (*Monitor, error) {
	m := &Monitor{
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_hits_total",
			Help:      "Engine constructions that reused persisted embeddings",
		}, []string{"kind"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_misses_total",
			Help:      "Engine constructions that had to rebuild embeddings",
		}, []string{"kind", "reason"}),
		CachedRows: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "embedding_rows",
			Help:      "Rows in the most recently resolved embedding matrix",
		}, []string{"kind"}),
		Builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_builds_total",
			Help:      "Embedding matrix builds by outcome",
		}, []string{"kind", "status"}),
		BuildDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_build_duration_seconds",
			Help:      "Time to embed a whole catalog",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"kind"}),
		BuildsActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "embedding_builds_in_progress",
			Help:      "Embedding builds currently running",
		}, []string{"kind"}),
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recommendation_requests_total",
			Help:      "Recommendation requests by operation",
		}, []string{"kind", "operation"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recommendation_duration_seconds",
			Help:      "Recommendation request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "operation"}),
	}

	for _, c := range []prometheus.Collector{
		m.CacheHits, m.CacheMisses, m.CachedRows, m.Builds,
		m.BuildDuration, m.BuildsActive, m.Queries, m.QueryDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Monitor) CacheHit(kind core.Kind, rows int) {
	m.CacheHits.WithLabelValues(kind.String()).Inc()
	m.CachedRows.WithLabelValues(kind.String()).Set(float64(rows))
}

func (m *Monitor) CacheMiss(kind core.Kind, reason string) {
	m.CacheMisses.WithLabelValues(kind.String(), reason).Inc()
}

func (m *Monitor) BuildStarted(kind core.Kind, rows int) {
	m.BuildsActive.WithLabelValues(kind.String()).Inc()
}

func (m *Monitor) BuildFinished(kind core.Kind, rows int, elapsed time.Duration, err error) {
	m.BuildsActive.WithLabelValues(kind.String()).Dec()
	if err != nil {
		m.Builds.WithLabelValues(kind.String(), "error").Inc()
		return
	}
	m.Builds.WithLabelValues(kind.String(), "ok").Inc()
	m.BuildDuration.WithLabelValues(kind.String()).Observe(elapsed.Seconds())
	m.CachedRows.WithLabelValues(kind.String()).Set(float64(rows))
}

func (m *Monitor) Query(kind core.Kind, op string, elapsed time.Duration) {
	m.Queries.WithLabelValues(kind.String(), op).Inc()
	m.QueryDuration.WithLabelValues(kind.String(), op).Observe(elapsed.Seconds())
}
