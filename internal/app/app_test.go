package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"merchant-governance/internal/config"
	"merchant-governance/internal/governance"
)

const sampleCSV = `id,region,vertical,gross_value,failure_rate,instant_confirm,free_cancel,price_parity
h-1,APAC,hotel,1000,0.02,0.9,0.8,0.1
h-2,APAC,hotel,1000,0.05,0.9,0.8,0.1
h-3,EMEA,hotel,2000,0.01,1,1,0.9
h-4,EMEA,hotel,500,0.01,0.9,,0.1
`

func testApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "merchants.csv")
	if err := os.WriteFile(path, []byte(sampleCSV), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	cfg := &config.Config{
		Dataset:    config.DatasetConfig{Source: config.SourceCSV, Path: path},
		Governance: config.GovernanceConfig{ActivePolicy: "ota", Policies: config.DefaultPolicies()},
		Export:     config.ExportConfig{MaxRows: 100},
	}
	return NewApp(cfg, "", zerolog.Nop())
}

func TestEvaluateOnceFromCSV(t *testing.T) {
	a := testApp(t)
	policy, err := a.policy("")
	if err != nil {
		t.Fatalf("policy: %v", err)
	}

	out, err := a.evaluateOnce(context.Background(), policy, `region == "APAC"`, false, false)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 filtered results, got %d", len(out.Results))
	}
	if out.Summary.CountPerTier["L1"] != 1 || out.Summary.CountPerTier[governance.RestrictedTier] != 1 {
		t.Fatalf("unexpected distribution: %v", out.Summary.CountPerTier)
	}
}

func TestEvaluateOnceStrictFails(t *testing.T) {
	a := testApp(t)
	policy, _ := a.policy("ota")

	_, err := a.evaluateOnce(context.Background(), policy, "", true, false)
	var missing *governance.MissingMetricError
	if !errors.As(err, &missing) || missing.MerchantID != "h-4" {
		t.Fatalf("expected missing metric for h-4, got %v", err)
	}
}

func TestPersistRequiresDatabase(t *testing.T) {
	a := testApp(t)
	policy, _ := a.policy("ota")

	if _, err := a.evaluateOnce(context.Background(), policy, "", false, true); err == nil {
		t.Fatal("expected error without database.dsn")
	}
}

func TestWriteSummary(t *testing.T) {
	a := testApp(t)
	policy, _ := a.policy("ota")
	out, err := a.evaluateOnce(context.Background(), policy, "", false, false)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	var buf bytes.Buffer
	writeSummary(&buf, policy, out.Summary)
	text := buf.String()

	for _, want := range []string{"Evaluated", "Failed", "Restricted", "L2", "L1", "Standard"} {
		if !strings.Contains(text, want) {
			t.Errorf("summary missing %q:\n%s", want, text)
		}
	}
	if strings.Index(text, "L2") > strings.Index(text, "Restricted") {
		t.Errorf("tiers should be listed best first:\n%s", text)
	}
}

func TestFormatDeltaPctZeroGross(t *testing.T) {
	s := governance.Summary{Evaluated: 1}
	if got := formatDeltaPct(s); !strings.Contains(got, "n/a") {
		t.Fatalf("expected n/a for zero gross, got %q", got)
	}

	s.TotalGrossValue = decimal.NewFromInt(1000)
	s.TotalImpactedValue = decimal.NewFromInt(1100)
	if got := formatDeltaPct(s); got != "+10.00%" {
		t.Fatalf("unexpected delta %q", got)
	}
}

func TestWriteMigrations(t *testing.T) {
	var buf bytes.Buffer
	writeMigrations(&buf, nil)
	if !strings.Contains(buf.String(), "no tier migrations") {
		t.Fatalf("unexpected output %q", buf.String())
	}

	buf.Reset()
	writeMigrations(&buf, []governance.Migration{{From: "L1", To: "L2", Count: 3}})
	if !strings.Contains(buf.String(), "L1") || !strings.Contains(buf.String(), "3") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestWriteResultsCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "results.csv")
	results := []governance.Result{
		{MerchantID: "a", Score: 17, Compliant: true, Tier: "L1", GrossValue: decimal.NewFromInt(1000), ImpactedValue: decimal.NewFromInt(1050)},
		{MerchantID: "b", Err: &governance.MissingMetricError{MerchantID: "b", Metric: "free_cancel"}},
	}

	if err := writeResultsCSV(path, results); err != nil {
		t.Fatalf("write csv: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(rows))
	}
	if rows[1][3] != "L1" || rows[1][5] != "1050" {
		t.Fatalf("unexpected row %v", rows[1])
	}
	if rows[2][6] == "" || rows[2][3] != "" {
		t.Fatalf("failed record should only carry an error: %v", rows[2])
	}
}

func TestObservedLabels(t *testing.T) {
	results := []governance.Result{
		{Tier: "L1"},
		{Tier: governance.RestrictedTier},
		{Tier: "L1"},
		{Tier: "L2"},
		{Err: errors.New("boom")},
	}
	got := observedLabels(results)
	want := []string{"L1", "L2", governance.RestrictedTier}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestFormatTierCounts(t *testing.T) {
	got := formatTierCounts(map[string]int{"L2": 1, "Restricted": 4, "L1": 2})
	if got != "L1=2 L2=1 Restricted=4" {
		t.Fatalf("unexpected %q", got)
	}
}
