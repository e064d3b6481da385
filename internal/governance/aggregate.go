package governance

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Summary is the population-level reduction of a result set. It only holds
// sums and counts so shards can be combined with Merge.
type Summary struct {
	CountPerTier       map[string]int
	Evaluated          int
	Failed             int
	ScoreSum           float64
	TotalGrossValue    decimal.Decimal
	TotalImpactedValue decimal.Decimal
}

// Aggregate reduces results into a Summary. Failed records are counted but
// contribute nothing else.
func Aggregate(results []Result) Summary {
	s := Summary{CountPerTier: make(map[string]int)}
	for _, r := range results {
		if r.Err != nil {
			s.Failed++
			continue
		}
		s.Evaluated++
		s.CountPerTier[r.Tier]++
		s.ScoreSum += r.Score
		s.TotalGrossValue = s.TotalGrossValue.Add(r.GrossValue)
		s.TotalImpactedValue = s.TotalImpactedValue.Add(r.ImpactedValue)
	}
	return s
}

// Merge adds two summaries component-wise.
func (s Summary) Merge(o Summary) Summary {
	out := Summary{
		CountPerTier:       make(map[string]int, len(s.CountPerTier)+len(o.CountPerTier)),
		Evaluated:          s.Evaluated + o.Evaluated,
		Failed:             s.Failed + o.Failed,
		ScoreSum:           s.ScoreSum + o.ScoreSum,
		TotalGrossValue:    s.TotalGrossValue.Add(o.TotalGrossValue),
		TotalImpactedValue: s.TotalImpactedValue.Add(o.TotalImpactedValue),
	}
	for tier, n := range s.CountPerTier {
		out.CountPerTier[tier] += n
	}
	for tier, n := range o.CountPerTier {
		out.CountPerTier[tier] += n
	}
	return out
}

// MeanScore is the average score of the evaluated records, or 0 when none
// were evaluated.
func (s Summary) MeanScore() float64 {
	if s.Evaluated == 0 {
		return 0
	}
	return s.ScoreSum / float64(s.Evaluated)
}

// ImpactDelta is the absolute change from gross to impacted value.
func (s Summary) ImpactDelta() decimal.Decimal {
	return s.TotalImpactedValue.Sub(s.TotalGrossValue)
}

// ImpactDeltaPct returns the relative impact in percent. It fails with
// ErrDivisionByZero when the total gross value is zero.
func (s Summary) ImpactDeltaPct() (decimal.Decimal, error) {
	if s.TotalGrossValue.IsZero() {
		return decimal.Decimal{}, ErrDivisionByZero
	}
	return s.ImpactDelta().Div(s.TotalGrossValue).Mul(hundred), nil
}

// Share returns the fraction of evaluated records that landed in tier.
func (s Summary) Share(tier string) float64 {
	if s.Evaluated == 0 {
		return 0
	}
	return float64(s.CountPerTier[tier]) / float64(s.Evaluated)
}
