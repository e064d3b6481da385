package alerting

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"merchant-governance/internal/governance"
)

// Guard decides whether an evaluation warrants an alert.
type Guard struct {
	ImpactThresholdPct decimal.Decimal
	MaxRestrictedPct   decimal.Decimal
}

// Check returns the breached conditions, empty when the population is within
// bounds. A zero threshold disables that condition.
func (g Guard) Check(s governance.Summary) []string {
	var reasons []string

	if g.ImpactThresholdPct.IsPositive() {
		delta, err := s.ImpactDeltaPct()
		switch {
		case errors.Is(err, governance.ErrDivisionByZero):
			if s.Evaluated > 0 {
				reasons = append(reasons, "impact undefined: population has zero gross value")
			}
		case delta.Abs().GreaterThan(g.ImpactThresholdPct):
			reasons = append(reasons, fmt.Sprintf("impact %s%% exceeds ±%s%%", delta.StringFixed(2), g.ImpactThresholdPct.StringFixed(2)))
		}
	}

	if g.MaxRestrictedPct.IsPositive() && s.Evaluated > 0 {
		restricted := RestrictedPct(s)
		if restricted.GreaterThan(g.MaxRestrictedPct) {
			reasons = append(reasons, fmt.Sprintf("restricted share %s%% exceeds %s%%", restricted.StringFixed(2), g.MaxRestrictedPct.StringFixed(2)))
		}
	}

	return reasons
}

// RestrictedPct is the percentage of evaluated merchants that were restricted.
func RestrictedPct(s governance.Summary) decimal.Decimal {
	if s.Evaluated == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(s.CountPerTier[governance.RestrictedTier])).
		Mul(decimal.NewFromInt(100)).
		Div(decimal.NewFromInt(int64(s.Evaluated)))
}
