package cli

import (
	"github.com/spf13/cobra"

	"merchant-governance/internal/app"
)

var runOpts app.RunOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Re-evaluate on a schedule, persist runs, and raise guard alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Run(cmd.Context(), runOpts)
	},
}

func init() {
	addPolicyFlags(runCmd, &runOpts.Policy, &runOpts.Filter)
}
