package cli

import (
	"github.com/spf13/cobra"

	"merchant-governance/internal/app"
)

var evaluateOpts app.EvaluateOptions

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Score the merchant population and print the tier distribution",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Evaluate(cmd.Context(), evaluateOpts)
	},
}

func init() {
	addPolicyFlags(evaluateCmd, &evaluateOpts.Policy, &evaluateOpts.Filter)
	evaluateCmd.Flags().BoolVar(&evaluateOpts.Strict, "strict", false, "Abort when any merchant cannot be evaluated")
	evaluateCmd.Flags().BoolVar(&evaluateOpts.Persist, "persist", false, "Store the run and its results in the database")
	evaluateCmd.Flags().BoolVar(&evaluateOpts.Results, "results", false, "Print one line per merchant")
}

func addPolicyFlags(cmd *cobra.Command, policy, filter *string) {
	cmd.Flags().StringVar(policy, "policy", "", "Policy variant (defaults to governance.active_policy)")
	cmd.Flags().StringVar(filter, "filter", "", `CEL expression selecting merchants, e.g. region == "APAC"`)
}
