package server

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains HTTP serving metrics.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  prometheus.Histogram
	rateLimitedTotal prometheus.Counter
}

// NewMetrics creates new server metrics registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates new server metrics registered with
// the provided registerer.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "pdp"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of evaluation requests by status code",
			},
			[]string{"status"},
		),
		requestDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of evaluation requests",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
		),
		rateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "rate_limited_total",
				Help:      "Total number of requests rejected by the rate limiter",
			},
		),
	}

	// Ignore duplicate registration errors; descriptors are identical.
	_ = registerer.Register(m.requestsTotal)
	_ = registerer.Register(m.requestDuration)
	_ = registerer.Register(m.rateLimitedTotal)

	return m
}

// RecordRequest records a completed evaluation request.
func (m *Metrics) RecordRequest(status int, duration time.Duration) {
	if m.requestsTotal == nil {
		return
	}
	m.requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.requestDuration.Observe(duration.Seconds())
}

// RecordRateLimited records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	if m.rateLimitedTotal == nil {
		return
	}
	m.rateLimitedTotal.Inc()
}
