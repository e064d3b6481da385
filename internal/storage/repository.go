package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"merchant-governance/internal/governance"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertMerchantSQL = `INSERT INTO merchants (
        id,
        region,
        vertical,
        segment,
        gross_value,
        metrics,
        updated_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,now()
    )
    ON CONFLICT (id) DO UPDATE
    SET
        region      = EXCLUDED.region,
        vertical    = EXCLUDED.vertical,
        segment     = EXCLUDED.segment,
        gross_value = EXCLUDED.gross_value,
        metrics     = EXCLUDED.metrics,
        updated_at  = now();`

	listMerchantsSQL = `SELECT
        id,
        region,
        vertical,
        segment,
        gross_value::text,
        metrics
    FROM merchants
    ORDER BY id;`

	countMerchantsSQL = `SELECT COUNT(*) FROM merchants;`

	insertRunSQL = `INSERT INTO evaluation_runs (
        id,
        policy_name,
        policy,
        filter,
        evaluated,
        failed,
        mean_score,
        total_gross_value,
        total_impacted_value,
        impact_delta_pct,
        tier_counts
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
    )
    RETURNING created_at;`

	insertResultSQL = `INSERT INTO evaluation_results (
        run_id,
        merchant_id,
        score,
        compliant,
        tier,
        gross_value,
        impacted_value,
        error
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    );`

	listRecentRunsSQL = `SELECT
        id::text,
        policy_name,
        policy,
        filter,
        evaluated,
        failed,
        mean_score,
        total_gross_value::text,
        total_impacted_value::text,
        impact_delta_pct::text,
        tier_counts,
        created_at
    FROM evaluation_runs
    ORDER BY created_at DESC
    LIMIT $1;`

	listRunResultsSQL = `SELECT
        merchant_id,
        score,
        compliant,
        tier,
        gross_value::text,
        impacted_value::text,
        error
    FROM evaluation_results
    WHERE run_id = $1
    ORDER BY merchant_id;`

	deleteRunsBeforeSQL = `DELETE FROM evaluation_runs WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// MerchantStore defines operations for the persisted metrics store.
type MerchantStore interface {
	UpsertMerchants(ctx context.Context, merchants []governance.Merchant) error
	ListMerchants(ctx context.Context) ([]governance.Merchant, error)
	CountMerchants(ctx context.Context) (int64, error)
}

// RunStore defines operations for evaluation auditing.
type RunStore interface {
	InsertRun(ctx context.Context, run EvaluationRun, results []governance.Result) (EvaluationRun, error)
	ListRecentRuns(ctx context.Context, limit int) ([]EvaluationRun, error)
	ListRunResults(ctx context.Context, runID uuid.UUID) ([]governance.Result, error)
	DeleteRunsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to merchants and evaluation runs.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// best effort; the lock dies with the session anyway
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertMerchants inserts or refreshes merchant records in one batch.
func (s *Store) UpsertMerchants(ctx context.Context, merchants []governance.Merchant) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if len(merchants) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, m := range merchants {
		metrics, err := json.Marshal(m.Metrics)
		if err != nil {
			return fmt.Errorf("marshal metrics for %s: %w", m.ID, err)
		}
		batch.Queue(upsertMerchantSQL, m.ID, m.Region, m.Vertical, m.Segment, m.GrossValue.String(), metrics)
	}

	if err := pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert merchants: %w", err)
	}
	return nil
}

// ListMerchants returns every stored merchant ordered by id.
func (s *Store) ListMerchants(ctx context.Context) ([]governance.Merchant, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listMerchantsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list merchants: %w", queryErr)
	}
	defer rows.Close()

	merchants := make([]governance.Merchant, 0)
	for rows.Next() {
		var (
			m        governance.Merchant
			grossStr string
			metrics  []byte
		)
		if err := rows.Scan(&m.ID, &m.Region, &m.Vertical, &m.Segment, &grossStr, &metrics); err != nil {
			return nil, err
		}
		if m.GrossValue, err = decimal.NewFromString(grossStr); err != nil {
			return nil, fmt.Errorf("parse gross value of %s: %w", m.ID, err)
		}
		if err := json.Unmarshal(metrics, &m.Metrics); err != nil {
			return nil, fmt.Errorf("parse metrics of %s: %w", m.ID, err)
		}
		merchants = append(merchants, m)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return merchants, nil
}

// CountMerchants counts stored merchants.
func (s *Store) CountMerchants(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countMerchantsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count merchants: %w", scanErr)
	}
	return count, nil
}

// InsertRun persists a run and its per-merchant results atomically.
func (s *Store) InsertRun(ctx context.Context, run EvaluationRun, results []governance.Result) (EvaluationRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return EvaluationRun{}, err
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}

	tierCounts, err := json.Marshal(run.TierCounts)
	if err != nil {
		return EvaluationRun{}, fmt.Errorf("marshal tier counts: %w", err)
	}

	var deltaPct interface{}
	if run.ImpactDeltaPct != nil {
		deltaPct = run.ImpactDeltaPct.String()
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return EvaluationRun{}, fmt.Errorf("begin run tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := tx.QueryRow(ctx, insertRunSQL,
		run.ID.String(),
		run.PolicyName,
		[]byte(run.Policy),
		run.Filter,
		run.Evaluated,
		run.Failed,
		run.MeanScore,
		run.TotalGrossValue.String(),
		run.TotalImpactedValue.String(),
		deltaPct,
		tierCounts,
	).Scan(&run.CreatedAt); err != nil {
		return EvaluationRun{}, fmt.Errorf("insert run: %w", err)
	}

	if len(results) > 0 {
		batch := &pgx.Batch{}
		for _, r := range results {
			var errMsg interface{}
			if r.Err != nil {
				errMsg = r.Err.Error()
			}
			batch.Queue(insertResultSQL,
				run.ID.String(),
				r.MerchantID,
				r.Score,
				r.Compliant,
				r.Tier,
				r.GrossValue.String(),
				r.ImpactedValue.String(),
				errMsg,
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return EvaluationRun{}, fmt.Errorf("insert run results: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return EvaluationRun{}, fmt.Errorf("commit run: %w", err)
	}
	return run, nil
}

// ListRecentRuns lists the most recent runs, newest first.
func (s *Store) ListRecentRuns(ctx context.Context, limit int) ([]EvaluationRun, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentRunsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent runs: %w", queryErr)
	}
	defer rows.Close()

	runs := make([]EvaluationRun, 0, limit)
	for rows.Next() {
		run, scanErr := scanRun(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		runs = append(runs, run)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return runs, nil
}

// ListRunResults returns the stored per-merchant results of a run.
func (s *Store) ListRunResults(ctx context.Context, runID uuid.UUID) ([]governance.Result, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRunResultsSQL, runID.String())
	if queryErr != nil {
		return nil, fmt.Errorf("list run results: %w", queryErr)
	}
	defer rows.Close()

	results := make([]governance.Result, 0)
	for rows.Next() {
		var (
			r           governance.Result
			grossStr    string
			impactedStr string
			errMsg      sql.NullString
		)
		if err := rows.Scan(&r.MerchantID, &r.Score, &r.Compliant, &r.Tier, &grossStr, &impactedStr, &errMsg); err != nil {
			return nil, err
		}
		if r.GrossValue, err = decimal.NewFromString(grossStr); err != nil {
			return nil, fmt.Errorf("parse gross value: %w", err)
		}
		if r.ImpactedValue, err = decimal.NewFromString(impactedStr); err != nil {
			return nil, fmt.Errorf("parse impacted value: %w", err)
		}
		if errMsg.Valid {
			r.Err = errors.New(errMsg.String)
		}
		results = append(results, r)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return results, nil
}

// DeleteRunsBefore prunes historical runs; results cascade.
func (s *Store) DeleteRunsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteRunsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete runs before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

func scanRun(rows pgx.Rows) (EvaluationRun, error) {
	var (
		idStr       string
		grossStr    string
		impactedStr string
		deltaStr    sql.NullString
		tierCounts  []byte
		run         EvaluationRun
	)

	if err := rows.Scan(
		&idStr,
		&run.PolicyName,
		&run.Policy,
		&run.Filter,
		&run.Evaluated,
		&run.Failed,
		&run.MeanScore,
		&grossStr,
		&impactedStr,
		&deltaStr,
		&tierCounts,
		&run.CreatedAt,
	); err != nil {
		return EvaluationRun{}, err
	}

	var err error
	if run.ID, err = uuid.Parse(idStr); err != nil {
		return EvaluationRun{}, fmt.Errorf("parse run id: %w", err)
	}
	if run.TotalGrossValue, err = decimal.NewFromString(grossStr); err != nil {
		return EvaluationRun{}, fmt.Errorf("parse total gross value: %w", err)
	}
	if run.TotalImpactedValue, err = decimal.NewFromString(impactedStr); err != nil {
		return EvaluationRun{}, fmt.Errorf("parse total impacted value: %w", err)
	}
	if deltaStr.Valid {
		delta, convErr := decimal.NewFromString(deltaStr.String)
		if convErr != nil {
			return EvaluationRun{}, fmt.Errorf("parse impact delta pct: %w", convErr)
		}
		run.ImpactDeltaPct = &delta
	}
	if err := json.Unmarshal(tierCounts, &run.TierCounts); err != nil {
		return EvaluationRun{}, fmt.Errorf("parse tier counts: %w", err)
	}

	return run, nil
}
