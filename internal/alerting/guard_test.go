package alerting

import (
	"testing"

	"github.com/shopspring/decimal"

	"merchant-governance/internal/governance"
)

func summary(restricted, other int, gross, impacted int64) governance.Summary {
	return governance.Summary{
		CountPerTier:       map[string]int{governance.RestrictedTier: restricted, "L1": other},
		Evaluated:          restricted + other,
		TotalGrossValue:    decimal.NewFromInt(gross),
		TotalImpactedValue: decimal.NewFromInt(impacted),
	}
}

func TestGuardCheck(t *testing.T) {
	g := Guard{ImpactThresholdPct: decimal.NewFromInt(5), MaxRestrictedPct: decimal.NewFromInt(20)}

	if reasons := g.Check(summary(1, 9, 1000, 980)); len(reasons) != 0 {
		t.Fatalf("population within bounds should not alert: %v", reasons)
	}
	if reasons := g.Check(summary(1, 9, 1000, 940)); len(reasons) != 1 {
		t.Fatalf("impact breach expected: %v", reasons)
	}
	if reasons := g.Check(summary(3, 7, 1000, 1000)); len(reasons) != 1 {
		t.Fatalf("restricted breach expected: %v", reasons)
	}
	if reasons := g.Check(summary(5, 5, 1000, 800)); len(reasons) != 2 {
		t.Fatalf("both breaches expected: %v", reasons)
	}
	if reasons := g.Check(summary(0, 3, 0, 0)); len(reasons) != 1 {
		t.Fatalf("zero gross should be flagged: %v", reasons)
	}
}

func TestGuardDisabled(t *testing.T) {
	if reasons := (Guard{}).Check(summary(10, 0, 1000, 100)); len(reasons) != 0 {
		t.Fatalf("zero thresholds disable the guard: %v", reasons)
	}
}

func TestRestrictedPct(t *testing.T) {
	if got := RestrictedPct(summary(1, 3, 1, 1)); !got.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("expected 25, got %s", got)
	}
	if got := RestrictedPct(governance.Summary{}); !got.IsZero() {
		t.Fatalf("empty population should be 0, got %s", got)
	}
}
