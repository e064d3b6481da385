// Package governance implements merchant scoring, the compliance guardrail,
// tier assignment and revenue impact estimation.
//
// Everything in this package is pure: a Policy is an immutable snapshot and
// evaluating the same records against the same Policy always yields the same
// Results.
package governance

import (
	"github.com/shopspring/decimal"
)

// FailureRateMetric is the metric consulted by the compliance guardrail.
const FailureRateMetric = "failure_rate"

// RestrictedTier is assigned to every non-compliant merchant.
const RestrictedTier = "Restricted"

// DefaultTierLabel is used when a policy does not name its fallback tier.
const DefaultTierLabel = "Standard"

// Merchant is one record of the metrics store.
type Merchant struct {
	ID         string
	Region     string
	Vertical   string
	Segment    string
	GrossValue decimal.Decimal
	Metrics    map[string]float64
}

// Metric returns the named metric and whether the record carries it.
func (m Merchant) Metric(name string) (float64, bool) {
	v, ok := m.Metrics[name]
	return v, ok
}

// FailureRate returns the record's failure rate or a MissingMetricError.
func (m Merchant) FailureRate() (float64, error) {
	v, ok := m.Metric(FailureRateMetric)
	if !ok {
		return 0, &MissingMetricError{MerchantID: m.ID, Metric: FailureRateMetric}
	}
	return v, nil
}

// Result is the governance outcome for a single merchant.
type Result struct {
	MerchantID    string
	Score         float64
	Compliant     bool
	Tier          string
	GrossValue    decimal.Decimal
	ImpactedValue decimal.Decimal

	// Err is set when the record could not be evaluated; the remaining
	// fields are zero in that case.
	Err error
}

// OK reports whether the record was evaluated successfully.
func (r Result) OK() bool {
	return r.Err == nil
}
