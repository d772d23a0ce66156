package fetcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/starford/contentgraph/internal/metrics"
)

type fetchMetrics struct {
	requests *prometheus.CounterVec
	duration prometheus.Histogram
}

func newFetchMetrics(reg *metrics.Registry) (*fetchMetrics, error) {
	m := &fetchMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metrics.Namespace,
			Subsystem: "upstream",
			Name:      "requests_total",
			Help:      "Upstream HTTP requests by status class",
		}, []string{"status"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metrics.Namespace,
			Subsystem: "upstream",
			Name:      "request_duration_seconds",
			Help:      "Upstream HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if err := reg.Register("upstream_requests", m.requests); err != nil {
		return nil, err
	}
	if err := reg.Register("upstream_request_duration", m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *fetchMetrics) observe(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(status).Inc()
	m.duration.Observe(took.Seconds())
}
