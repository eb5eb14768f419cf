package pdp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains policy decision metrics.
type Metrics struct {
	decisionsTotal     *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	riskScores         prometheus.Histogram
}

// NewMetrics creates new engine metrics registered with the default
// registerer.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates new engine metrics registered with
// the provided registerer so they appear on the service's /metrics
// endpoint.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "pdp"
	}
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "decisions_total",
				Help:      "Total number of policy decisions by effect and trust level",
			},
			[]string{"effect", "trust_level"},
		),
		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "evaluation_duration_seconds",
				Help:      "Duration of policy evaluations",
				Buckets:   []float64{.0001, .00025, .0005, .001, .0025, .005, .01, .025, .05},
			},
		),
		riskScores: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "engine",
				Name:      "risk_score",
				Help:      "Distribution of computed risk scores",
				Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
		),
	}

	// Ignore duplicate registration errors; descriptors are identical.
	_ = registerer.Register(m.decisionsTotal)
	_ = registerer.Register(m.evaluationDuration)
	_ = registerer.Register(m.riskScores)

	m.Init()

	return m
}

// Init pre-populates common label combinations with zero values so the
// Vec metrics appear in /metrics output immediately after startup. It is
// idempotent.
func (m *Metrics) Init() {
	if m.decisionsTotal == nil {
		return
	}
	effects := []Effect{EffectAllow, EffectDeny, EffectChallenge, EffectStepUp}
	for _, effect := range effects {
		for level := TrustUntrusted; level <= TrustVerified; level++ {
			m.decisionsTotal.WithLabelValues(string(effect), level.String())
		}
	}
}

// RecordDecision records a completed evaluation.
func (m *Metrics) RecordDecision(effect Effect, trust TrustLevel, riskScore float64, duration time.Duration) {
	if m.decisionsTotal == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(string(effect), trust.String()).Inc()
	m.evaluationDuration.Observe(duration.Seconds())
	m.riskScores.Observe(riskScore)
}
