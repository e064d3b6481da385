package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"merchant-governance/internal/alerting"
	"merchant-governance/internal/config"
	"merchant-governance/internal/dataset"
	"merchant-governance/internal/filter"
	"merchant-governance/internal/governance"
	"merchant-governance/internal/metrics"
	"merchant-governance/internal/scheduler"
	"merchant-governance/internal/storage"
)

// PolicyProvider returns the policy snapshot for the next evaluation pass.
type PolicyProvider func() (*governance.Policy, error)

// Request parameterises a single evaluation pass.
type Request struct {
	Filter  *filter.Filter
	Strict  bool
	Persist bool
	Notify  bool
}

// Outcome is everything one evaluation pass produced.
type Outcome struct {
	RunID       uuid.UUID
	EvaluatedAt time.Time
	Policy      *governance.Policy
	Filter      string
	Records     []governance.Merchant
	Results     []governance.Result
	Summary     governance.Summary
	Alerts      []string
	Persisted   bool
}

// Service orchestrates loading, evaluation, persistence, and alerting.
type Service struct {
	scheduler *scheduler.Scheduler
	source    dataset.Source
	runs      storage.RunStore
	notifier  alerting.Notifier
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	guard     alerting.Guard
	channels  []string
	alertsOn  bool
	workers   int
	retention time.Duration
	locker    storage.AdvisoryLocker
	lockKey   int64
}

// New constructs the governance service. runs, notifier and m may be nil.
func New(cfg *config.Config, sched *scheduler.Scheduler, source dataset.Source, runs storage.RunStore, notifier alerting.Notifier, m *metrics.Metrics, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := runs.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler: sched,
		source:    source,
		runs:      runs,
		notifier:  notifier,
		metrics:   m,
		logger:    logger.With().Str("component", "service").Logger(),
		guard: alerting.Guard{
			ImpactThresholdPct: decimal.NewFromFloat(cfg.Alerting.ImpactThresholdPct),
			MaxRestrictedPct:   decimal.NewFromFloat(cfg.Alerting.MaxRestrictedPct),
		},
		channels:  cfg.Alerting.Channels,
		alertsOn:  cfg.Alerting.Enabled,
		workers:   cfg.Scheduler.Workers,
		retention: cfg.Database.Retention,
		locker:    locker,
		lockKey:   cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run re-evaluates the population on every scheduler slot, asking policies
// for a fresh snapshot each time.
func (s *Service) Run(ctx context.Context, policies PolicyProvider, req Request) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, func(ctx context.Context, slot time.Time) error {
		return s.ProcessSlot(ctx, slot, policies, req)
	})
}

// ProcessSlot runs one scheduled pass under the advisory lock.
func (s *Service) ProcessSlot(ctx context.Context, slot time.Time, policies PolicyProvider, req Request) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.metrics.IncrementOutcome("skipped")
		s.logger.Debug().Time("slot", slot).Msg("skip slot because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	policy, err := policies()
	if err != nil {
		s.metrics.IncrementOutcome("error")
		return fmt.Errorf("resolve policy: %w", err)
	}

	_, err = s.Evaluate(ctx, policy, req)
	return err
}

// Evaluate performs a full pass: load, filter, evaluate, aggregate, and
// optionally persist and alert.
func (s *Service) Evaluate(ctx context.Context, policy *governance.Policy, req Request) (*Outcome, error) {
	start := time.Now()
	out, err := s.evaluate(ctx, policy, req)
	s.metrics.ObserveEvaluateLatency(time.Since(start))
	if err != nil {
		s.metrics.IncrementOutcome("error")
		return nil, err
	}
	s.metrics.IncrementOutcome("ok")
	return out, nil
}

func (s *Service) evaluate(ctx context.Context, policy *governance.Policy, req Request) (*Outcome, error) {
	if policy == nil {
		return nil, errors.New("policy is required")
	}

	records, err := s.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	loaded := len(records)

	records, err = req.Filter.Apply(records)
	if err != nil {
		return nil, err
	}

	results, err := governance.EvaluateParallel(ctx, records, policy, s.workers)
	if err != nil {
		return nil, err
	}

	if req.Strict {
		if err := governance.Errors(results); err != nil {
			return nil, fmt.Errorf("strict evaluation aborted: %w", err)
		}
	}
	for _, r := range results {
		if r.Err != nil {
			s.logger.Warn().Err(r.Err).Str("merchant_id", r.MerchantID).Msg("merchant skipped")
		}
	}

	summary := governance.Aggregate(results)
	s.metrics.ObserveSummary(policy, summary)

	out := &Outcome{
		RunID:       uuid.New(),
		EvaluatedAt: time.Now().UTC(),
		Policy:      policy,
		Filter:      req.Filter.String(),
		Records:     records,
		Results:     results,
		Summary:     summary,
		Alerts:      s.guard.Check(summary),
	}

	logEvent := s.logger.Info().
		Str("run_id", out.RunID.String()).
		Str("policy", policy.Name()).
		Int("loaded", loaded).
		Int("evaluated", summary.Evaluated).
		Int("failed", summary.Failed).
		Float64("mean_score", summary.MeanScore()).
		Str("gross_value", summary.TotalGrossValue.StringFixed(2)).
		Str("impacted_value", summary.TotalImpactedValue.StringFixed(2))
	if pct, err := summary.ImpactDeltaPct(); err == nil {
		logEvent = logEvent.Str("impact_delta_pct", pct.StringFixed(3))
	}
	logEvent.Msg("evaluation complete")

	if req.Persist {
		if s.runs == nil {
			return nil, errors.New("persistence requested but database not configured")
		}
		if err := s.persist(ctx, out); err != nil {
			return nil, err
		}
		out.Persisted = true
	}

	if req.Notify && len(out.Alerts) > 0 {
		s.dispatchAlert(ctx, out)
	}

	return out, nil
}

func (s *Service) persist(ctx context.Context, out *Outcome) error {
	policyJSON, err := json.Marshal(out.Policy.Spec())
	if err != nil {
		return fmt.Errorf("marshal policy snapshot: %w", err)
	}

	run := storage.EvaluationRun{
		ID:                 out.RunID,
		PolicyName:         out.Policy.Name(),
		Policy:             policyJSON,
		Filter:             out.Filter,
		Evaluated:          out.Summary.Evaluated,
		Failed:             out.Summary.Failed,
		MeanScore:          out.Summary.MeanScore(),
		TotalGrossValue:    out.Summary.TotalGrossValue,
		TotalImpactedValue: out.Summary.TotalImpactedValue,
		TierCounts:         out.Summary.CountPerTier,
	}
	if pct, err := out.Summary.ImpactDeltaPct(); err == nil {
		run.ImpactDeltaPct = &pct
	}

	stored, err := s.runs.InsertRun(ctx, run, out.Results)
	if err != nil {
		return fmt.Errorf("persist run: %w", err)
	}
	out.EvaluatedAt = stored.CreatedAt.UTC()

	if s.retention > 0 {
		pruned, err := s.runs.DeleteRunsBefore(ctx, time.Now().Add(-s.retention))
		if err != nil {
			s.logger.Error().Err(err).Msg("failed to prune old runs")
		} else if pruned > 0 {
			s.logger.Info().Int64("pruned", pruned).Msg("pruned old evaluation runs")
		}
	}
	return nil
}

func (s *Service) dispatchAlert(ctx context.Context, out *Outcome) {
	if !s.alertsOn || s.notifier == nil {
		s.logger.Warn().Strs("reasons", out.Alerts).Msg("guard breached but alerting disabled")
		return
	}

	note := alerting.Notification{
		RunID:         out.RunID.String(),
		EvaluatedAt:   out.EvaluatedAt,
		PolicyName:    out.Policy.Name(),
		Evaluated:     out.Summary.Evaluated,
		Failed:        out.Summary.Failed,
		TierCounts:    out.Summary.CountPerTier,
		GrossValue:    out.Summary.TotalGrossValue,
		ImpactedValue: out.Summary.TotalImpactedValue,
		ThresholdPct:  s.guard.ImpactThresholdPct,
		RestrictedPct: alerting.RestrictedPct(out.Summary),
		MaxRestricted: s.guard.MaxRestrictedPct,
		Reasons:       out.Alerts,
		Channels:      s.channels,
	}
	if pct, err := out.Summary.ImpactDeltaPct(); err == nil {
		note.ImpactDeltaPct = pct
	}

	if err := s.notifier.Notify(ctx, note); err != nil {
		s.logger.Error().Err(err).Str("run_id", note.RunID).Msg("failed to dispatch alert")
		return
	}
	s.metrics.IncrementAlerts()
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
