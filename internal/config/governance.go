package config

import (
	"fmt"
	"strings"

	"merchant-governance/internal/governance"
)

// GovernanceConfig holds the configured policy variants.
type GovernanceConfig struct {
	ActivePolicy string         `mapstructure:"active_policy"`
	Policies     []PolicyConfig `mapstructure:"policies"`
}

// PolicyConfig is the file representation of one policy variant. Tier labels
// live in list entries rather than map keys because viper lower-cases keys.
type PolicyConfig struct {
	Name                 string       `mapstructure:"name"`
	DefaultTier          string       `mapstructure:"default_tier"`
	ComplianceLimit      float64      `mapstructure:"compliance_limit"`
	RestrictedMultiplier *float64     `mapstructure:"restricted_multiplier"`
	DefaultMultiplier    *float64     `mapstructure:"default_multiplier"`
	Terms                []TermConfig `mapstructure:"terms"`
	Tiers                []TierConfig `mapstructure:"tiers"`
}

// TermConfig declares one scoring term. Weight defaults to 1.
type TermConfig struct {
	Metric  string   `mapstructure:"metric"`
	Weight  *float64 `mapstructure:"weight"`
	Scale   float64  `mapstructure:"scale"`
	Floor   *float64 `mapstructure:"floor"`
	Ceiling *float64 `mapstructure:"ceiling"`
}

// TierConfig declares one rung of the ladder, highest first.
type TierConfig struct {
	Label            string   `mapstructure:"label"`
	MinScore         float64  `mapstructure:"min_score"`
	ImpactMultiplier *float64 `mapstructure:"impact_multiplier"`
}

// Validate checks that every variant builds and the active one exists.
func (g GovernanceConfig) Validate() error {
	seen := make(map[string]struct{}, len(g.Policies))
	for _, p := range g.Policies {
		key := strings.ToLower(p.Name)
		if key == "" {
			return fmt.Errorf("governance.policies: every policy needs a name")
		}
		if _, dup := seen[key]; dup {
			return fmt.Errorf("governance.policies: duplicate policy %q", p.Name)
		}
		seen[key] = struct{}{}

		if _, err := governance.NewPolicy(p.Spec()); err != nil {
			return fmt.Errorf("governance.policies[%s]: %w", p.Name, err)
		}
	}
	if _, ok := seen[strings.ToLower(g.ActivePolicy)]; !ok {
		return fmt.Errorf("governance.active_policy %q is not defined", g.ActivePolicy)
	}
	return nil
}

// Policy builds the named variant, or the active one when name is empty.
func (g GovernanceConfig) Policy(name string) (*governance.Policy, error) {
	if name == "" {
		name = g.ActivePolicy
	}
	for _, p := range g.Policies {
		if strings.EqualFold(p.Name, name) {
			policy, err := governance.NewPolicy(p.Spec())
			if err != nil {
				return nil, fmt.Errorf("policy %q: %w", p.Name, err)
			}
			return policy, nil
		}
	}
	return nil, fmt.Errorf("policy %q is not defined", name)
}

// Names lists the configured variants in file order.
func (g GovernanceConfig) Names() []string {
	out := make([]string, 0, len(g.Policies))
	for _, p := range g.Policies {
		out = append(out, p.Name)
	}
	return out
}

// Spec converts the file representation into an engine policy spec.
func (p PolicyConfig) Spec() governance.PolicySpec {
	spec := governance.PolicySpec{
		Name:              p.Name,
		DefaultTier:       p.DefaultTier,
		ComplianceLimit:   p.ComplianceLimit,
		Weights:           make(map[string]float64, len(p.Terms)),
		ImpactMultipliers: make(map[string]float64, len(p.Tiers)+2),
	}

	for _, t := range p.Terms {
		weight := 1.0
		if t.Weight != nil {
			weight = *t.Weight
		}
		spec.Terms = append(spec.Terms, governance.TermSpec{
			Metric:  t.Metric,
			Scale:   t.Scale,
			Floor:   t.Floor,
			Ceiling: t.Ceiling,
		})
		spec.Weights[t.Metric] = weight
	}

	for _, t := range p.Tiers {
		spec.Tiers = append(spec.Tiers, governance.TierThreshold{Label: t.Label, MinScore: t.MinScore})
		if t.ImpactMultiplier != nil {
			spec.ImpactMultipliers[t.Label] = *t.ImpactMultiplier
		}
	}

	if p.RestrictedMultiplier != nil {
		spec.ImpactMultipliers[governance.RestrictedTier] = *p.RestrictedMultiplier
	}
	if p.DefaultMultiplier != nil {
		defaultTier := p.DefaultTier
		if defaultTier == "" {
			defaultTier = governance.DefaultTierLabel
		}
		spec.ImpactMultipliers[defaultTier] = *p.DefaultMultiplier
	}

	return spec
}

func f(v float64) *float64 { return &v }

// DefaultPolicies returns the built-in variants used when the config file
// declares none.
func DefaultPolicies() []PolicyConfig {
	return []PolicyConfig{
		{
			Name:                 "ota",
			ComplianceLimit:      0.03,
			RestrictedMultiplier: f(0.4),
			Terms: []TermConfig{
				{Metric: "instant_confirm", Scale: 10},
				{Metric: "free_cancel", Scale: 10},
				{Metric: "price_parity", Scale: 40},
			},
			Tiers: []TierConfig{
				{Label: "L2", MinScore: 45, ImpactMultiplier: f(1.15)},
				{Label: "L1", MinScore: 15, ImpactMultiplier: f(1.05)},
			},
		},
		{
			Name:                 "marketplace",
			ComplianceLimit:      0.05,
			RestrictedMultiplier: f(0.5),
			Terms: []TermConfig{
				{Metric: "rating", Scale: 40, Floor: f(3.5), Ceiling: f(5.0)},
				{Metric: "on_time_ship", Scale: 40},
				{Metric: "response_rate", Scale: 20},
			},
			Tiers: []TierConfig{
				{Label: "Premium", MinScore: 80, ImpactMultiplier: f(1.2)},
				{Label: "Basic", MinScore: 50, ImpactMultiplier: f(1.05)},
			},
		},
		{
			Name:                 "local_services",
			ComplianceLimit:      0.02,
			RestrictedMultiplier: f(0.3),
			DefaultMultiplier:    f(0.95),
			Terms: []TermConfig{
				{Metric: "rating", Scale: 50, Floor: f(4.0), Ceiling: f(5.0)},
				{Metric: "repeat_rate", Scale: 30},
				{Metric: "verified_ratio", Scale: 20},
			},
			Tiers: []TierConfig{
				{Label: "Premium", MinScore: 75, ImpactMultiplier: f(1.25)},
				{Label: "Basic", MinScore: 40, ImpactMultiplier: f(1.0)},
			},
		},
	}
}
