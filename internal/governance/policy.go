package governance

import (
	"math"
	"sort"
	"strings"
)

// TermSpec declares how one metric contributes to the score.
//
// A raw term contributes weight*value*Scale. When Floor and Ceiling are both
// set the value is first rebased onto [0,1] by (value-Floor)/(Ceiling-Floor),
// clamped at zero on the low end.
type TermSpec struct {
	Metric  string   `json:"metric"`
	Scale   float64  `json:"scale"`
	Floor   *float64 `json:"floor,omitempty"`
	Ceiling *float64 `json:"ceiling,omitempty"`
}

// Rebased reports whether the term rebases its metric before scaling.
func (t TermSpec) Rebased() bool {
	return t.Floor != nil || t.Ceiling != nil
}

// TierThreshold is one rung of the tier ladder.
type TierThreshold struct {
	Label    string  `json:"label"`
	MinScore float64 `json:"min_score"`
}

// PolicySpec is the mutable description a Policy is built from.
type PolicySpec struct {
	Name              string             `json:"name"`
	Terms             []TermSpec         `json:"terms"`
	Weights           map[string]float64 `json:"weights"`
	Tiers             []TierThreshold    `json:"tiers"`
	DefaultTier       string             `json:"default_tier"`
	ComplianceLimit   float64            `json:"compliance_limit"`
	ImpactMultipliers map[string]float64 `json:"impact_multipliers,omitempty"`
}

// Policy is a validated, immutable policy snapshot. Build one with NewPolicy.
type Policy struct {
	spec  PolicySpec
	terms []weightedTerm
}

type weightedTerm struct {
	TermSpec
	weight float64
}

// NewPolicy validates spec and returns an immutable Policy built from a deep
// copy of it. Any problem is reported as an *InvalidConfigurationError.
func NewPolicy(spec PolicySpec) (*Policy, error) {
	spec = spec.clone()
	if strings.TrimSpace(spec.DefaultTier) == "" {
		spec.DefaultTier = DefaultTierLabel
	}

	if err := validate(spec); err != nil {
		return nil, err
	}

	terms := make([]weightedTerm, 0, len(spec.Weights))
	for _, t := range spec.Terms {
		w, ok := spec.Weights[t.Metric]
		if !ok {
			continue
		}
		terms = append(terms, weightedTerm{TermSpec: t, weight: w})
	}

	return &Policy{spec: spec, terms: terms}, nil
}

func validate(spec PolicySpec) error {
	if !finite(spec.ComplianceLimit) || spec.ComplianceLimit < 0 || spec.ComplianceLimit > 1 {
		return invalid("compliance_limit", "must be within [0,1], got %v", spec.ComplianceLimit)
	}

	known := make(map[string]struct{}, len(spec.Terms))
	for i, t := range spec.Terms {
		if strings.TrimSpace(t.Metric) == "" {
			return invalid("terms", "term %d has no metric name", i)
		}
		if _, dup := known[t.Metric]; dup {
			return invalid("terms", "metric %q declared twice", t.Metric)
		}
		known[t.Metric] = struct{}{}

		if !finite(t.Scale) || t.Scale < 0 {
			return invalid("terms", "metric %q: scale must be a non-negative number, got %v", t.Metric, t.Scale)
		}
		if t.Rebased() {
			if t.Floor == nil || t.Ceiling == nil {
				return invalid("terms", "metric %q: rebased terms need both floor and ceiling", t.Metric)
			}
			if !finite(*t.Floor) || !finite(*t.Ceiling) || *t.Ceiling <= *t.Floor {
				return invalid("terms", "metric %q: ceiling %v must be above floor %v", t.Metric, *t.Ceiling, *t.Floor)
			}
		}
	}

	for metric, w := range spec.Weights {
		if _, ok := known[metric]; !ok {
			return invalid("weights", "metric %q has no term definition", metric)
		}
		if !finite(w) || w < 0 {
			return invalid("weights", "metric %q: weight must be a non-negative number, got %v", metric, w)
		}
	}

	if len(spec.Tiers) == 0 {
		return invalid("tiers", "at least one tier threshold is required")
	}
	if spec.DefaultTier == RestrictedTier {
		return invalid("default_tier", "%q is reserved", RestrictedTier)
	}
	labels := map[string]struct{}{RestrictedTier: {}, spec.DefaultTier: {}}
	for i, tier := range spec.Tiers {
		if strings.TrimSpace(tier.Label) == "" {
			return invalid("tiers", "tier %d has no label", i)
		}
		if _, dup := labels[tier.Label]; dup {
			return invalid("tiers", "label %q is duplicated or reserved", tier.Label)
		}
		labels[tier.Label] = struct{}{}

		if !finite(tier.MinScore) || tier.MinScore < 0 {
			return invalid("tiers", "tier %q: min score must be a non-negative number, got %v", tier.Label, tier.MinScore)
		}
		if i > 0 && tier.MinScore >= spec.Tiers[i-1].MinScore {
			return invalid("tiers", "tier %q (%v) must be strictly below %q (%v)",
				tier.Label, tier.MinScore, spec.Tiers[i-1].Label, spec.Tiers[i-1].MinScore)
		}
	}

	for label, m := range spec.ImpactMultipliers {
		if _, ok := labels[label]; !ok {
			return invalid("impact_multipliers", "unknown tier %q", label)
		}
		if !finite(m) || m < 0 {
			return invalid("impact_multipliers", "tier %q: multiplier must be a non-negative number, got %v", label, m)
		}
	}

	return nil
}

// Name returns the policy name.
func (p *Policy) Name() string { return p.spec.Name }

// ComplianceLimit returns the maximum tolerated failure rate.
func (p *Policy) ComplianceLimit() float64 { return p.spec.ComplianceLimit }

// DefaultTier returns the label assigned when no threshold matches.
func (p *Policy) DefaultTier() string { return p.spec.DefaultTier }

// Tiers returns a copy of the threshold ladder, highest first.
func (p *Policy) Tiers() []TierThreshold {
	return append([]TierThreshold(nil), p.spec.Tiers...)
}

// Spec returns a deep copy of the PolicySpec the policy was built from.
func (p *Policy) Spec() PolicySpec { return p.spec.clone() }

// Labels lists every tier the policy can assign, best first.
func (p *Policy) Labels() []string {
	out := make([]string, 0, len(p.spec.Tiers)+2)
	for _, t := range p.spec.Tiers {
		out = append(out, t.Label)
	}
	return append(out, p.spec.DefaultTier, RestrictedTier)
}

// Rank orders tiers: Restricted is 0, the default tier 1, and ladder tiers
// count up from the lowest threshold. Unknown labels rank -1.
func (p *Policy) Rank(label string) int {
	switch label {
	case RestrictedTier:
		return 0
	case p.spec.DefaultTier:
		return 1
	}
	n := len(p.spec.Tiers)
	for i, t := range p.spec.Tiers {
		if t.Label == label {
			return n - i + 1
		}
	}
	return -1
}

// Overrides adjusts a policy the way an operator would with sliders.
type Overrides struct {
	Weights           map[string]float64
	Thresholds        map[string]float64
	ComplianceLimit   *float64
	ImpactMultipliers map[string]float64
}

// Empty reports whether applying o would leave a policy unchanged.
func (o Overrides) Empty() bool {
	return len(o.Weights) == 0 && len(o.Thresholds) == 0 && o.ComplianceLimit == nil && len(o.ImpactMultipliers) == 0
}

// WithOverrides returns a new validated Policy with o applied. The receiver
// is left untouched.
func (p *Policy) WithOverrides(o Overrides) (*Policy, error) {
	spec := p.spec.clone()

	if spec.Weights == nil && len(o.Weights) > 0 {
		spec.Weights = make(map[string]float64, len(o.Weights))
	}
	for metric, w := range o.Weights {
		spec.Weights[metric] = w
	}

	for label, score := range o.Thresholds {
		idx := -1
		for i, t := range spec.Tiers {
			if t.Label == label {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil, invalid("tiers", "cannot override unknown tier %q", label)
		}
		spec.Tiers[idx].MinScore = score
	}

	if o.ComplianceLimit != nil {
		spec.ComplianceLimit = *o.ComplianceLimit
	}

	if spec.ImpactMultipliers == nil && len(o.ImpactMultipliers) > 0 {
		spec.ImpactMultipliers = make(map[string]float64, len(o.ImpactMultipliers))
	}
	for label, m := range o.ImpactMultipliers {
		spec.ImpactMultipliers[label] = m
	}

	return NewPolicy(spec)
}

// WeightedMetrics returns the metrics that contribute to the score, sorted.
func (p *Policy) WeightedMetrics() []string {
	out := make([]string, 0, len(p.terms))
	for _, t := range p.terms {
		out = append(out, t.Metric)
	}
	sort.Strings(out)
	return out
}

func (s PolicySpec) clone() PolicySpec {
	out := s
	out.Terms = make([]TermSpec, len(s.Terms))
	for i, t := range s.Terms {
		out.Terms[i] = TermSpec{Metric: t.Metric, Scale: t.Scale, Floor: copyFloat(t.Floor), Ceiling: copyFloat(t.Ceiling)}
	}
	out.Weights = copyMap(s.Weights)
	out.Tiers = append([]TierThreshold(nil), s.Tiers...)
	out.ImpactMultipliers = copyMap(s.ImpactMultipliers)
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyMap(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
