package cli

import (
	"github.com/spf13/cobra"

	"merchant-governance/internal/app"
)

var exportOpts app.ExportOptions

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export per-merchant results as CSV and/or a PNG tier chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Export(cmd.Context(), exportOpts)
	},
}

func init() {
	addPolicyFlags(exportCmd, &exportOpts.Policy, &exportOpts.Filter)
	exportCmd.Flags().StringVar(&exportOpts.RunID, "run", "", "Export a persisted run instead of evaluating afresh")
	exportCmd.Flags().StringVar(&exportOpts.PNGPath, "png", "", "Path to write PNG chart")
	exportCmd.Flags().StringVar(&exportOpts.CSVPath, "csv", "", "Path to write CSV data")
	exportCmd.Flags().IntVar(&exportOpts.MaxRows, "max-rows", 0, "Maximum rows to export (defaults to config)")
}
