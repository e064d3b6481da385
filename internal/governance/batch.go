package governance

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Evaluate scores every record against policy. The output is index-aligned
// with records; records that fail carry their error in Result.Err and do not
// affect the others.
func Evaluate(records []Merchant, policy *Policy) []Result {
	results := make([]Result, len(records))
	for i, m := range records {
		results[i] = evaluateOne(policy, m)
	}
	return results
}

// EvaluateStrict is the all-or-nothing variant of Evaluate: if any record
// fails, no results are returned and the joined per-record errors are.
func EvaluateStrict(records []Merchant, policy *Policy) ([]Result, error) {
	results := Evaluate(records, policy)
	if err := Errors(results); err != nil {
		return nil, err
	}
	return results, nil
}

// EvaluateParallel shards records across at most workers goroutines. It
// produces exactly what Evaluate produces; only ctx cancellation can make it
// return an error.
func EvaluateParallel(ctx context.Context, records []Merchant, policy *Policy, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(records) {
		workers = len(records)
	}
	if workers <= 1 {
		return Evaluate(records, policy), nil
	}

	results := make([]Result, len(records))
	chunk := (len(records) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for start := 0; start < len(records); start += chunk {
		start := start
		end := min(start+chunk, len(records))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := ctx.Err(); err != nil {
					return err
				}
				results[i] = evaluateOne(policy, records[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("parallel evaluation: %w", err)
	}
	return results, nil
}

// Errors joins the per-record errors found in results, or returns nil.
func Errors(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}

func evaluateOne(policy *Policy, m Merchant) Result {
	res, err := policy.Evaluate(m)
	if err != nil {
		return Result{MerchantID: m.ID, Err: err}
	}
	return res
}
