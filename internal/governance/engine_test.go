package governance

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustPolicy(t *testing.T, spec PolicySpec) *Policy {
	t.Helper()
	p, err := NewPolicy(spec)
	require.NoError(t, err)
	return p
}

func otaMerchant(id string, failure float64) Merchant {
	return Merchant{
		ID:         id,
		GrossValue: decimal.NewFromInt(1000),
		Metrics: map[string]float64{
			FailureRateMetric: failure,
			"instant_confirm": 0.9,
			"free_cancel":     0.8,
		},
	}
}

func TestEvaluateCompliantMerchantLandsInL1(t *testing.T) {
	p := mustPolicy(t, otaSpec())

	res, err := p.Evaluate(otaMerchant("m-1", 0.02))
	require.NoError(t, err)
	assert.InDelta(t, 17.0, res.Score, 1e-9)
	assert.True(t, res.Compliant)
	assert.Equal(t, "L1", res.Tier)
	assert.True(t, res.ImpactedValue.Equal(decimal.NewFromInt(1000)), "L1 has no multiplier, got %s", res.ImpactedValue)
}

func TestEvaluateNonCompliantMerchantIsRestricted(t *testing.T) {
	p := mustPolicy(t, otaSpec())

	res, err := p.Evaluate(otaMerchant("m-1", 0.05))
	require.NoError(t, err)
	assert.InDelta(t, 17.0, res.Score, 1e-9)
	assert.False(t, res.Compliant)
	assert.Equal(t, RestrictedTier, res.Tier)
	assert.True(t, res.ImpactedValue.Equal(decimal.NewFromInt(400)), "got %s", res.ImpactedValue)
}

func TestImpactedValue(t *testing.T) {
	mult := map[string]float64{"L2": 1.15, RestrictedTier: 0.4}
	gross := decimal.NewFromInt(1000)

	assert.True(t, ImpactedValue(gross, RestrictedTier, mult).Equal(decimal.NewFromInt(400)))
	assert.True(t, ImpactedValue(gross, "L2", mult).Equal(decimal.NewFromInt(1150)))
	assert.True(t, ImpactedValue(gross, "L1", mult).Equal(gross))
	assert.True(t, ImpactedValue(gross, "L1", nil).Equal(gross))
}

func TestComplianceBoundaryIsInclusive(t *testing.T) {
	ok, err := IsCompliant(otaMerchant("m", 0.03), 0.03)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsCompliant(otaMerchant("m", 0.0301), 0.03)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAssignTierBoundaryInclusion(t *testing.T) {
	ladder := []TierThreshold{{Label: "L2", MinScore: 45}, {Label: "L1", MinScore: 15}}

	assert.Equal(t, "L2", AssignTier(45, true, ladder, DefaultTierLabel))
	assert.Equal(t, "L1", AssignTier(44.999, true, ladder, DefaultTierLabel))
	assert.Equal(t, "L1", AssignTier(15, true, ladder, DefaultTierLabel))
	assert.Equal(t, DefaultTierLabel, AssignTier(14.999, true, ladder, DefaultTierLabel))
	assert.Equal(t, RestrictedTier, AssignTier(1000, false, ladder, DefaultTierLabel))
}

func TestThresholdMonotonicity(t *testing.T) {
	p := mustPolicy(t, otaSpec())

	prev := -1
	for score := 0.0; score <= 100; score += 0.5 {
		rank := p.Rank(AssignTier(score, true, p.Tiers(), p.DefaultTier()))
		require.GreaterOrEqual(t, rank, prev, "tier downgraded at score %v", score)
		prev = rank
	}
}

func TestComplianceDominatesScore(t *testing.T) {
	spec := otaSpec()
	spec.Weights = map[string]float64{"instant_confirm": 100, "free_cancel": 100}
	p := mustPolicy(t, spec)

	res, err := p.Evaluate(otaMerchant("m", 0.5))
	require.NoError(t, err)
	assert.Greater(t, res.Score, 45.0)
	assert.Equal(t, RestrictedTier, res.Tier)
}

func TestRebasedTermClampsBelowFloor(t *testing.T) {
	p := mustPolicy(t, PolicySpec{
		Terms:           []TermSpec{{Metric: "rating", Scale: 40, Floor: ptr(3.5), Ceiling: ptr(5.0)}},
		Weights:         map[string]float64{"rating": 1},
		Tiers:           []TierThreshold{{Label: "Premium", MinScore: 30}},
		ComplianceLimit: 0.05,
	})

	rec := Merchant{ID: "r", Metrics: map[string]float64{"rating": 2.0, FailureRateMetric: 0}}
	score, err := p.Score(rec)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	rec.Metrics["rating"] = 3.5
	score, err = p.Score(rec)
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	rec.Metrics["rating"] = 4.25
	score, err = p.Score(rec)
	require.NoError(t, err)
	assert.InDelta(t, 20.0, score, 1e-9)
}

func TestScoreMissingMetric(t *testing.T) {
	p := mustPolicy(t, otaSpec())
	rec := otaMerchant("m-7", 0.01)
	delete(rec.Metrics, "free_cancel")

	_, err := p.Score(rec)
	var missing *MissingMetricError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "m-7", missing.MerchantID)
	assert.Equal(t, "free_cancel", missing.Metric)
}

func TestMissingFailureRate(t *testing.T) {
	p := mustPolicy(t, otaSpec())
	rec := otaMerchant("m-8", 0)
	delete(rec.Metrics, FailureRateMetric)

	_, err := p.Evaluate(rec)
	var missing *MissingMetricError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, FailureRateMetric, missing.Metric)
}

func TestUnweightedTermsAreIgnored(t *testing.T) {
	spec := otaSpec()
	spec.Terms = append(spec.Terms, TermSpec{Metric: "rating", Scale: 40, Floor: ptr(3.5), Ceiling: ptr(5)})
	p := mustPolicy(t, spec)

	score, err := p.Score(otaMerchant("m", 0))
	require.NoError(t, err)
	assert.InDelta(t, 17.0, score, 1e-9)
}

func TestEvaluateIsolatesRecordErrors(t *testing.T) {
	p := mustPolicy(t, otaSpec())
	broken := otaMerchant("broken", 0.01)
	delete(broken.Metrics, "instant_confirm")
	records := []Merchant{otaMerchant("a", 0.01), broken, otaMerchant("c", 0.09)}

	results := Evaluate(records, p)
	require.Len(t, results, 3)
	assert.True(t, results[0].OK())
	assert.Equal(t, "broken", results[1].MerchantID)
	assert.Error(t, results[1].Err)
	assert.Equal(t, RestrictedTier, results[2].Tier)

	_, err := EvaluateStrict(records, p)
	var missing *MissingMetricError
	require.True(t, errors.As(err, &missing))

	ok, err := EvaluateStrict([]Merchant{records[0], records[2]}, p)
	require.NoError(t, err)
	assert.Len(t, ok, 2)
}

func TestEvaluateIsDeterministic(t *testing.T) {
	p := mustPolicy(t, otaSpec())
	rec := []Merchant{otaMerchant("m", 0.02)}

	assert.Equal(t, Evaluate(rec, p), Evaluate(rec, p))
}

func TestEvaluateParallelMatchesSequential(t *testing.T) {
	p := mustPolicy(t, otaSpec())

	records := make([]Merchant, 0, 257)
	for i := 0; i < 257; i++ {
		m := otaMerchant(fmt.Sprintf("m-%03d", i), float64(i%7)/100)
		m.Metrics["instant_confirm"] = float64(i%10) / 10
		m.GrossValue = decimal.NewFromInt(int64(100 + i))
		if i%50 == 0 {
			delete(m.Metrics, "free_cancel")
		}
		records = append(records, m)
	}

	want := Evaluate(records, p)
	for _, workers := range []int{0, 1, 3, 8, 1000} {
		got, err := EvaluateParallel(context.Background(), records, p, workers)
		require.NoError(t, err)
		assert.Equal(t, want, got, "workers=%d", workers)
	}
}

func TestEvaluateParallelHonoursCancellation(t *testing.T) {
	p := mustPolicy(t, otaSpec())
	records := make([]Merchant, 64)
	for i := range records {
		records[i] = otaMerchant(fmt.Sprintf("m-%d", i), 0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := EvaluateParallel(ctx, records, p, 4)
	assert.ErrorIs(t, err, context.Canceled)
}
