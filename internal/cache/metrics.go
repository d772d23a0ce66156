package cache

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/starford/contentgraph/internal/metrics"
)

// cacheMetrics mirrors statistics into Prometheus.
type cacheMetrics struct {
	requests      *prometheus.CounterVec
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	entries       prometheus.Gauge
}

func newCacheMetrics(reg *metrics.Registry, name string) (*cacheMetrics, error) {
	labels := prometheus.Labels{"cache": name}
	m := &cacheMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metrics.Namespace,
			Subsystem:   "cache",
			Name:        "requests_total",
			ConstLabels: labels,
			Help:        "Cache reads by result (fresh, stale, miss)",
		}, []string{"result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metrics.Namespace,
			Subsystem:   "cache",
			Name:        "fetches_total",
			ConstLabels: labels,
			Help:        "Upstream fetches by mode (load, refresh) and outcome (ok, error)",
		}, []string{"mode", "outcome"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   metrics.Namespace,
			Subsystem:   "cache",
			Name:        "fetch_duration_seconds",
			ConstLabels: labels,
			Help:        "Upstream fetch latency",
			Buckets:     prometheus.DefBuckets,
		}, []string{"mode"}),
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metrics.Namespace,
			Subsystem:   "cache",
			Name:        "entries",
			ConstLabels: labels,
			Help:        "Number of keys held by the cache",
		}),
	}

	if err := reg.Register(name+".cache_requests", m.requests); err != nil {
		return nil, err
	}
	if err := reg.Register(name+".cache_fetches", m.fetches); err != nil {
		return nil, err
	}
	if err := reg.Register(name+".cache_fetch_duration", m.fetchDuration); err != nil {
		return nil, err
	}
	if err := reg.Register(name+".cache_entries", m.entries); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *cacheMetrics) recordRequest(result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(result).Inc()
}

func (m *cacheMetrics) recordFetch(mode string, took time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.fetches.WithLabelValues(mode, outcome).Inc()
	m.fetchDuration.WithLabelValues(mode).Observe(took.Seconds())
}

func (m *cacheMetrics) updateEntries(n int) {
	if m == nil {
		return
	}
	m.entries.Set(float64(n))
}
