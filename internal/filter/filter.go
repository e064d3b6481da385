// Package filter selects a sub-population of merchants with CEL expressions,
// e.g. `region == "APAC" && metrics.rating >= 4.0`.
package filter

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"merchant-governance/internal/governance"
)

// Filter is a compiled, reusable merchant predicate. It is safe for
// concurrent use.
type Filter struct {
	expr    string
	program cel.Program
}

// Compile type-checks expr against the merchant variables.
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("filter expression is empty")
	}

	env, err := cel.NewEnv(
		cel.Variable("id", cel.StringType),
		cel.Variable("region", cel.StringType),
		cel.Variable("vertical", cel.StringType),
		cel.Variable("segment", cel.StringType),
		cel.Variable("gross_value", cel.DoubleType),
		cel.Variable("metrics", cel.MapType(cel.StringType, cel.DoubleType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile filter %q: %w", expr, issues.Err())
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("filter %q must evaluate to bool, got %s", expr, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("build filter program: %w", err)
	}

	return &Filter{expr: expr, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.expr
}

// Match evaluates the predicate for one merchant. Referencing a metric the
// record lacks is an error, not a false.
func (f *Filter) Match(m governance.Merchant) (bool, error) {
	metrics := m.Metrics
	if metrics == nil {
		metrics = map[string]float64{}
	}

	out, _, err := f.program.Eval(map[string]any{
		"id":          m.ID,
		"region":      m.Region,
		"vertical":    m.Vertical,
		"segment":     m.Segment,
		"gross_value": m.GrossValue.InexactFloat64(),
		"metrics":     metrics,
	})
	if err != nil {
		return false, fmt.Errorf("evaluate filter for %s: %w", m.ID, err)
	}

	matched, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter returned %T, want bool", out.Value())
	}
	return matched, nil
}

// Apply keeps the merchants matching f. A nil filter keeps everything.
func (f *Filter) Apply(merchants []governance.Merchant) ([]governance.Merchant, error) {
	if f == nil {
		return merchants, nil
	}
	kept := make([]governance.Merchant, 0, len(merchants))
	for _, m := range merchants {
		ok, err := f.Match(m)
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, m)
		}
	}
	return kept, nil
}
