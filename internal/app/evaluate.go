package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"merchant-governance/internal/governance"
)

// Evaluate runs one pass of the selected policy and prints the tier
// distribution.
func (a *App) Evaluate(ctx context.Context, opts EvaluateOptions) error {
	policy, err := a.policy(opts.Policy)
	if err != nil {
		return err
	}

	out, err := a.evaluateOnce(ctx, policy, opts.Filter, opts.Strict, opts.Persist)
	if err != nil {
		return err
	}

	writeSummary(os.Stdout, policy, out.Summary)
	if opts.Results {
		fmt.Fprintln(os.Stdout)
		writeResults(os.Stdout, out.Results)
	}
	if len(out.Alerts) > 0 {
		fmt.Fprintln(os.Stdout)
		for _, reason := range out.Alerts {
			fmt.Fprintf(os.Stdout, "guard: %s\n", reason)
		}
	}
	if out.Persisted {
		fmt.Fprintf(os.Stdout, "\nrun %s persisted\n", out.RunID)
	}
	return nil
}

func writeSummary(w io.Writer, policy *governance.Policy, s governance.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Policy\t%s\n", policy.Name())
	fmt.Fprintf(tw, "Evaluated\t%d\n", s.Evaluated)
	fmt.Fprintf(tw, "Failed\t%d\n", s.Failed)
	fmt.Fprintf(tw, "Mean score\t%.2f\n", s.MeanScore())
	fmt.Fprintf(tw, "Gross value\t%s\n", s.TotalGrossValue.StringFixed(2))
	fmt.Fprintf(tw, "Impacted value\t%s\n", s.TotalImpactedValue.StringFixed(2))
	fmt.Fprintf(tw, "Impact delta\t%s\n", formatDeltaPct(s))
	tw.Flush()

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Tier\tMerchants\tShare%")
	for _, label := range policy.Labels() {
		fmt.Fprintf(tw, "%s\t%d\t%.1f\n", label, s.CountPerTier[label], s.Share(label)*100)
	}
	tw.Flush()
}

func writeResults(w io.Writer, results []governance.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Merchant\tScore\tCompliant\tTier\tGross\tImpacted\tError")
	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(tw, "%s\t-\t-\t-\t-\t-\t%s\n", r.MerchantID, sanitizeInline(r.Err.Error()))
			continue
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%t\t%s\t%s\t%s\t\n",
			r.MerchantID, r.Score, r.Compliant, r.Tier,
			r.GrossValue.StringFixed(2), r.ImpactedValue.StringFixed(2))
	}
	tw.Flush()
}

func formatDeltaPct(s governance.Summary) string {
	pct, err := s.ImpactDeltaPct()
	if errors.Is(err, governance.ErrDivisionByZero) {
		return "n/a (zero gross value)"
	}
	return signed(pct, 2) + "%"
}

func signed(d decimal.Decimal, places int32) string {
	if d.IsPositive() {
		return "+" + d.StringFixed(places)
	}
	return d.StringFixed(places)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
