package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains audit metrics.
type Metrics struct {
	recordsTotal  *prometheus.CounterVec
	droppedTotal  prometheus.Counter
	sinkFailures  *prometheus.CounterVec
	writeDuration *prometheus.HistogramVec
}

// NewMetrics creates new audit metrics registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates new audit metrics registered with the
// provided registerer so they appear on the service's /metrics endpoint.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "pdp"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "records_total",
				Help:      "Total number of audit records emitted",
			},
			[]string{"effect"},
		),
		droppedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "records_dropped_total",
				Help:      "Total number of audit records dropped due to a full queue",
			},
		),
		sinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "sink_failures_total",
				Help:      "Total number of audit sink write failures",
			},
			[]string{"sink"},
		),
		writeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "sink_write_duration_seconds",
				Help:      "Duration of audit sink writes",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"sink"},
		),
	}

	// Ignore duplicate registration errors; descriptors are identical.
	_ = registerer.Register(m.recordsTotal)
	_ = registerer.Register(m.droppedTotal)
	_ = registerer.Register(m.sinkFailures)
	_ = registerer.Register(m.writeDuration)

	m.Init()

	return m
}

// Init pre-populates common label combinations with zero values so the
// Vec metrics appear in /metrics output immediately after startup. It is
// idempotent.
func (m *Metrics) Init() {
	if m.recordsTotal == nil {
		return
	}
	for _, effect := range []string{"allow", "deny", "challenge", "step_up"} {
		m.recordsTotal.WithLabelValues(effect)
	}
}

// RecordEmitted records an emitted audit record.
func (m *Metrics) RecordEmitted(effect string) {
	if m.recordsTotal == nil {
		return
	}
	m.recordsTotal.WithLabelValues(effect).Inc()
}

// RecordDropped records a dropped audit record.
func (m *Metrics) RecordDropped() {
	if m.droppedTotal == nil {
		return
	}
	m.droppedTotal.Inc()
}

// RecordSinkFailure records a sink write failure.
func (m *Metrics) RecordSinkFailure(sink string) {
	if m.sinkFailures == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

// RecordSinkWrite records the duration of a sink write.
func (m *Metrics) RecordSinkWrite(sink string, duration time.Duration) {
	if m.writeDuration == nil {
		return
	}
	m.writeDuration.WithLabelValues(sink).Observe(duration.Seconds())
}
