package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"

	"merchant-governance/internal/governance"
)

func testPolicy(t *testing.T) *governance.Policy {
	t.Helper()
	p, err := governance.NewPolicy(governance.PolicySpec{
		Name:            "ota",
		Terms:           []governance.TermSpec{{Metric: "instant_confirm", Scale: 10}},
		Weights:         map[string]float64{"instant_confirm": 1},
		Tiers:           []governance.TierThreshold{{Label: "L1", MinScore: 5}},
		ComplianceLimit: 0.03,
	})
	if err != nil {
		t.Fatalf("policy: %v", err)
	}
	return p
}

func TestObserveSummary(t *testing.T) {
	m := New()
	summary := governance.Summary{
		CountPerTier:       map[string]int{"L1": 3, governance.RestrictedTier: 1},
		Evaluated:          4,
		Failed:             2,
		ScoreSum:           20,
		TotalGrossValue:    decimal.NewFromInt(1000),
		TotalImpactedValue: decimal.NewFromInt(900),
	}

	m.ObserveSummary(testPolicy(t), summary)
	m.IncrementOutcome("ok")
	m.ObserveEvaluateLatency(120 * time.Millisecond)

	if got := testutil.ToFloat64(m.TierMerchants.WithLabelValues("ota", "L1")); got != 3 {
		t.Fatalf("L1 gauge = %v", got)
	}
	if got := testutil.ToFloat64(m.TierMerchants.WithLabelValues("ota", governance.DefaultTierLabel)); got != 0 {
		t.Fatalf("unused tiers should be reset to zero, got %v", got)
	}
	if got := testutil.ToFloat64(m.MeanScore); got != 5 {
		t.Fatalf("mean score = %v", got)
	}
	if got := testutil.ToFloat64(m.RecordFailures); got != 2 {
		t.Fatalf("record failures = %v", got)
	}
	if got := testutil.ToFloat64(m.EvaluationsTotal.WithLabelValues("ok")); got != 1 {
		t.Fatalf("evaluations = %v", got)
	}
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	m.ObserveSummary(testPolicy(t), governance.Summary{})
	m.IncrementOutcome("ok")
	m.IncrementAlerts()
	m.ObserveEvaluateLatency(time.Second)
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.IncrementAlerts()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "govsim_alerts_dispatched_total 1") {
		t.Fatalf("alerts counter missing from exposition:\n%s", body)
	}
}
