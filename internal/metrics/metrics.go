package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"merchant-governance/internal/governance"
)

// Metrics provides observability for governance evaluations.
type Metrics struct {
	registry *prometheus.Registry

	// Merchants per tier in the latest evaluation
	TierMerchants *prometheus.GaugeVec

	// Gross and impacted value of the latest evaluation
	GrossValue    prometheus.Gauge
	ImpactedValue prometheus.Gauge
	MeanScore     prometheus.Gauge

	EvaluationsTotal *prometheus.CounterVec
	RecordFailures   prometheus.Counter
	EvaluateLatency  prometheus.Histogram
	AlertsDispatched prometheus.Counter
}

// New creates a Metrics instance registered on its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		TierMerchants: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "govsim_tier_merchants",
			Help: "Merchants assigned to each tier by the latest evaluation",
		}, []string{"policy", "tier"}),
		GrossValue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "govsim_gross_value",
			Help: "Total gross value of the latest evaluated population",
		}),
		ImpactedValue: factory.NewGauge(prometheus.GaugeOpts{
			Name: "govsim_impacted_value",
			Help: "Total impacted value of the latest evaluated population",
		}),
		MeanScore: factory.NewGauge(prometheus.GaugeOpts{
			Name: "govsim_mean_score",
			Help: "Mean governance score of the latest evaluation",
		}),
		EvaluationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "govsim_evaluations_total",
			Help: "Evaluation passes by outcome",
		}, []string{"outcome"}),
		RecordFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "govsim_record_failures_total",
			Help: "Merchant records that could not be evaluated",
		}),
		EvaluateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "govsim_evaluate_duration_seconds",
			Help:    "Duration of a full evaluation pass including loading and persistence",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		AlertsDispatched: factory.NewCounter(prometheus.CounterOpts{
			Name: "govsim_alerts_dispatched_total",
			Help: "Governance alerts sent to notification channels",
		}),
	}
}

// ObserveSummary publishes the population aggregates of an evaluation.
func (m *Metrics) ObserveSummary(policy *governance.Policy, s governance.Summary) {
	if m == nil {
		return
	}
	for _, tier := range policy.Labels() {
		m.TierMerchants.WithLabelValues(policy.Name(), tier).Set(float64(s.CountPerTier[tier]))
	}
	m.GrossValue.Set(s.TotalGrossValue.InexactFloat64())
	m.ImpactedValue.Set(s.TotalImpactedValue.InexactFloat64())
	m.MeanScore.Set(s.MeanScore())
	m.RecordFailures.Add(float64(s.Failed))
}

// IncrementOutcome counts an evaluation pass ("ok", "error", "skipped").
func (m *Metrics) IncrementOutcome(outcome string) {
	if m != nil {
		m.EvaluationsTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveEvaluateLatency records the duration of an evaluation pass.
func (m *Metrics) ObserveEvaluateLatency(d time.Duration) {
	if m != nil {
		m.EvaluateLatency.Observe(d.Seconds())
	}
}

// IncrementAlerts counts a dispatched alert.
func (m *Metrics) IncrementAlerts() {
	if m != nil {
		m.AlertsDispatched.Inc()
	}
}

// Gatherer exposes the registry for tests and custom exporters.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
