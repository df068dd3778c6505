package catalog

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Response sources, used both as a metric label and as the SourceHeader value.
const (
	SourceUpstream = "upstream"
	SourceFallback = "fallback"
)

// Metrics records how catalog requests were served.
type Metrics struct {
	requests *prometheus.CounterVec
	failures *prometheus.CounterVec
	duration prometheus.Histogram
}

// NewMetrics registers the catalog collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "moviebox",
				Subsystem: "catalog",
				Name:      "requests_total",
				Help:      "Catalog proxy responses by source.",
			},
			[]string{"source"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "moviebox",
				Subsystem: "catalog",
				Name:      "upstream_failures_total",
				Help:      "Upstream catalog failures that were replaced by fallback data.",
			},
			[]string{"reason"},
		),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "moviebox",
			Subsystem: "catalog",
			Name:      "upstream_duration_seconds",
			Help:      "Duration of upstream catalog calls.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2, 3, 5},
		}),
	}
	for _, source := range []string{SourceUpstream, SourceFallback} {
		m.requests.WithLabelValues(source)
	}
	return m
}

func (m *Metrics) observe(source, reason string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(source).Inc()
	m.duration.Observe(elapsed.Seconds())
	if reason != "" {
		m.failures.WithLabelValues(reason).Inc()
	}
}
