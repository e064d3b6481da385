package governance

import (
	"github.com/shopspring/decimal"
)

// Score computes the weighted governance score of m. Terms are summed in
// declaration order so the result is bit-for-bit reproducible.
func (p *Policy) Score(m Merchant) (float64, error) {
	var total float64
	for _, t := range p.terms {
		v, ok := m.Metric(t.Metric)
		if !ok {
			return 0, &MissingMetricError{MerchantID: m.ID, Metric: t.Metric}
		}
		total += t.weight * t.normalize(v) * t.Scale
	}
	return total, nil
}

func (t weightedTerm) normalize(v float64) float64 {
	if !t.Rebased() {
		return v
	}
	rebased := (v - *t.Floor) / (*t.Ceiling - *t.Floor)
	if rebased < 0 {
		return 0
	}
	return rebased
}

// IsCompliant reports whether m's failure rate is within limit. The boundary
// is inclusive.
func IsCompliant(m Merchant, limit float64) (bool, error) {
	rate, err := m.FailureRate()
	if err != nil {
		return false, err
	}
	return rate <= limit, nil
}

// AssignTier walks ladder highest first and returns the first label whose
// minimum is at or below score. Non-compliant merchants are always
// Restricted; scores below every rung get defaultTier.
func AssignTier(score float64, compliant bool, ladder []TierThreshold, defaultTier string) string {
	if !compliant {
		return RestrictedTier
	}
	for _, t := range ladder {
		if t.MinScore <= score {
			return t.Label
		}
	}
	return defaultTier
}

// ImpactedValue scales gross by the tier multiplier. Tiers without a
// multiplier keep their gross value.
func ImpactedValue(gross decimal.Decimal, tier string, multipliers map[string]float64) decimal.Decimal {
	m, ok := multipliers[tier]
	if !ok {
		return gross
	}
	return gross.Mul(decimal.NewFromFloat(m))
}

// Evaluate runs the full pipeline for a single merchant.
func (p *Policy) Evaluate(m Merchant) (Result, error) {
	score, err := p.Score(m)
	if err != nil {
		return Result{}, err
	}
	compliant, err := IsCompliant(m, p.spec.ComplianceLimit)
	if err != nil {
		return Result{}, err
	}
	tier := AssignTier(score, compliant, p.spec.Tiers, p.spec.DefaultTier)

	return Result{
		MerchantID:    m.ID,
		Score:         score,
		Compliant:     compliant,
		Tier:          tier,
		GrossValue:    m.GrossValue,
		ImpactedValue: ImpactedValue(m.GrossValue, tier, p.spec.ImpactMultipliers),
	}, nil
}
