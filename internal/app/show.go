package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"merchant-governance/internal/storage"
)

// Show prints recent evaluation runs.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.requireStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	runs, err := store.ListRecentRuns(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(os.Stdout, "no runs found")
		return nil
	}

	writeRuns(os.Stdout, runs)
	return nil
}

func writeRuns(w io.Writer, runs []storage.EvaluationRun) {
	writer := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tRun\tPolicy\tEvaluated\tFailed\tMean\tImpact%\tTiers\tFilter")

	for _, run := range runs {
		delta := "n/a"
		if run.ImpactDeltaPct != nil {
			delta = run.ImpactDeltaPct.StringFixed(2)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%d\t%.2f\t%s\t%s\t%s\n",
			run.CreatedAt.UTC().Format(time.RFC3339),
			run.ID.String()[:8],
			run.PolicyName,
			run.Evaluated,
			run.Failed,
			run.MeanScore,
			delta,
			formatTierCounts(run.TierCounts),
			sanitizeInline(run.Filter),
		)
	}

	writer.Flush()
}

func formatTierCounts(counts map[string]int) string {
	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, fmt.Sprintf("%s=%d", label, counts[label]))
	}
	return strings.Join(parts, " ")
}
