package cli

import (
	"github.com/spf13/cobra"

	"merchant-governance/internal/app"
)

var importOpts app.ImportOptions

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load a merchant CSV into the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Import(cmd.Context(), importOpts)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Migrate(cmd.Context())
	},
}

func init() {
	importCmd.Flags().StringVar(&importOpts.Path, "file", "", "CSV file to import (defaults to dataset.path)")
	importCmd.Flags().BoolVar(&importOpts.Migrate, "migrate", false, "Apply schema migrations first")
	importCmd.Flags().BoolVar(&importOpts.DryRun, "dry-run", false, "Validate the file without writing to storage")
}
