package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"merchant-governance/internal/app"
	"merchant-governance/internal/governance"
)

var (
	simulatePolicy      string
	simulateFilter      string
	simulateWeights     []string
	simulateThresholds  []string
	simulateMultipliers []string
	simulateLimit       float64
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Compare the baseline policy with a what-if scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := buildOverrides(cmd)
		if err != nil {
			return err
		}

		return getApp().Simulate(cmd.Context(), app.SimulateOptions{
			Policy:    simulatePolicy,
			Filter:    simulateFilter,
			Overrides: overrides,
		})
	},
}

func init() {
	addPolicyFlags(simulateCmd, &simulatePolicy, &simulateFilter)
	simulateCmd.Flags().StringArrayVar(&simulateWeights, "weight", nil, "Weight override as metric=value (repeatable)")
	simulateCmd.Flags().StringArrayVar(&simulateThresholds, "threshold", nil, "Tier minimum score as label=value (repeatable)")
	simulateCmd.Flags().StringArrayVar(&simulateMultipliers, "multiplier", nil, "Impact multiplier as tier=value (repeatable)")
	simulateCmd.Flags().Float64Var(&simulateLimit, "compliance-limit", 0, "Maximum failure_rate still considered compliant")
}

func buildOverrides(cmd *cobra.Command) (governance.Overrides, error) {
	var (
		o   governance.Overrides
		err error
	)
	if o.Weights, err = parsePairs("--weight", simulateWeights); err != nil {
		return o, err
	}
	if o.Thresholds, err = parsePairs("--threshold", simulateThresholds); err != nil {
		return o, err
	}
	if o.ImpactMultipliers, err = parsePairs("--multiplier", simulateMultipliers); err != nil {
		return o, err
	}
	if cmd.Flags().Changed("compliance-limit") {
		limit := simulateLimit
		o.ComplianceLimit = &limit
	}
	return o, nil
}

// parsePairs turns ["a=1", "b=2.5"] into a map. Later keys win.
func parsePairs(flag string, pairs []string) (map[string]float64, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]float64, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid %s value %q: want key=value", flag, pair)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s value %q: %w", flag, pair, err)
		}
		out[key] = v
	}
	return out, nil
}
