package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	chart "github.com/wcharczuk/go-chart/v2"

	"merchant-governance/internal/governance"
)

// Export writes per-merchant results as CSV and/or a PNG bar chart of the
// tier distribution. With RunID set the results come from a persisted run,
// otherwise the policy is evaluated afresh.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxRows = a.Config.ResolveMaxRows(opts.MaxRows)

	var (
		results []governance.Result
		labels  []string
		title   string
	)

	if opts.RunID != "" {
		id, err := uuid.Parse(opts.RunID)
		if err != nil {
			return fmt.Errorf("invalid --run value: %w", err)
		}
		store, closeStore, err := a.requireStore(ctx)
		if err != nil {
			return err
		}
		defer closeStore()

		results, err = store.ListRunResults(ctx, id)
		if err != nil {
			return err
		}
		title = "run " + id.String()
	} else {
		policy, err := a.policy(opts.Policy)
		if err != nil {
			return err
		}
		out, err := a.evaluateOnce(ctx, policy, opts.Filter, false, false)
		if err != nil {
			return err
		}
		results = out.Results
		labels = policy.Labels()
		title = policy.Name()
	}

	if len(results) == 0 {
		a.Logger.Info().Msg("no results to export")
		return nil
	}
	if len(results) > opts.MaxRows {
		a.Logger.Warn().Int("total", len(results)).Int("max_rows", opts.MaxRows).Msg("truncating export")
		results = results[:opts.MaxRows]
	}

	summary := governance.Aggregate(results)
	if labels == nil {
		labels = observedLabels(results)
	}
	a.Logger.Info().Int("exported", len(results)).Str("source", title).Msg("exporting results")

	if opts.CSVPath != "" {
		if err := writeResultsCSV(opts.CSVPath, results); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeTierChart(opts.PNGPath, title, labels, summary); err != nil {
			return err
		}
	}

	return nil
}

// observedLabels lists tiers present in results in order of first
// appearance, with Restricted last.
func observedLabels(results []governance.Result) []string {
	seen := map[string]bool{}
	labels := []string{}
	restricted := false
	for _, r := range results {
		if r.Err != nil || seen[r.Tier] {
			continue
		}
		seen[r.Tier] = true
		if r.Tier == governance.RestrictedTier {
			restricted = true
			continue
		}
		labels = append(labels, r.Tier)
	}
	if restricted {
		labels = append(labels, governance.RestrictedTier)
	}
	return labels
}

func writeResultsCSV(path string, results []governance.Result) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"merchant_id", "score", "compliant", "tier", "gross_value", "impacted_value", "error"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, r := range results {
		record := []string{r.MerchantID, "", "", "", "", "", ""}
		if r.Err != nil {
			record[6] = r.Err.Error()
		} else {
			record[1] = strconv.FormatFloat(r.Score, 'f', 4, 64)
			record[2] = strconv.FormatBool(r.Compliant)
			record[3] = r.Tier
			record[4] = r.GrossValue.String()
			record[5] = r.ImpactedValue.String()
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeTierChart(path, title string, labels []string, s governance.Summary) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	if len(labels) == 0 {
		return errors.New("no evaluated merchants to chart")
	}

	bars := make([]chart.Value, 0, len(labels))
	top := 1.0
	for _, label := range labels {
		n := float64(s.CountPerTier[label])
		top = max(top, n)
		bars = append(bars, chart.Value{Label: label, Value: n})
	}

	graph := chart.BarChart{
		Title:    fmt.Sprintf("Tier distribution (%s)", title),
		Width:    1024,
		Height:   576,
		BarWidth: 80,
		Background: chart.Style{
			Padding: chart.Box{Top: 40},
		},
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: 0, Max: top},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.0f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
