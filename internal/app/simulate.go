package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"merchant-governance/internal/governance"
)

// Simulate evaluates the population under the baseline policy and under the
// baseline with overrides applied, then prints both distributions and the
// tier migrations between them.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	baseline, err := a.policy(opts.Policy)
	if err != nil {
		return err
	}
	if opts.Overrides.Empty() {
		return fmt.Errorf("no overrides given; use --weight, --threshold, --multiplier or --compliance-limit")
	}

	scenario, err := baseline.WithOverrides(opts.Overrides)
	if err != nil {
		return fmt.Errorf("scenario: %w", err)
	}

	before, err := a.evaluateOnce(ctx, baseline, opts.Filter, false, false)
	if err != nil {
		return err
	}

	// Evaluate the same snapshot of records so both runs see identical input.
	after := governance.Evaluate(before.Records, scenario)

	writeComparison(os.Stdout, baseline, before.Summary, governance.Aggregate(after))
	migrations := governance.Migrations(before.Results, after)
	fmt.Fprintln(os.Stdout)
	writeMigrations(os.Stdout, migrations)
	return nil
}

func writeComparison(w io.Writer, policy *governance.Policy, base, scen governance.Summary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "Tier\tBaseline\tScenario\tChange")
	for _, label := range policy.Labels() {
		b, s := base.CountPerTier[label], scen.CountPerTier[label]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%+d\n", label, b, s, s-b)
	}
	fmt.Fprintf(tw, "Mean score\t%.2f\t%.2f\t%+.2f\n", base.MeanScore(), scen.MeanScore(), scen.MeanScore()-base.MeanScore())
	fmt.Fprintf(tw, "Impacted value\t%s\t%s\t%s\n",
		base.TotalImpactedValue.StringFixed(2),
		scen.TotalImpactedValue.StringFixed(2),
		signed(scen.TotalImpactedValue.Sub(base.TotalImpactedValue), 2))
	fmt.Fprintf(tw, "Impact delta\t%s\t%s\t\n", formatDeltaPct(base), formatDeltaPct(scen))
	tw.Flush()
}

func writeMigrations(w io.Writer, migrations []governance.Migration) {
	if len(migrations) == 0 {
		fmt.Fprintln(w, "no tier migrations")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "From\tTo\tMerchants")
	for _, m := range migrations {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", m.From, m.To, m.Count)
	}
	tw.Flush()
}
