package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sawpanic/basisrun/internal/backtest"
	"github.com/sawpanic/basisrun/internal/persistence"
)

const (
	insertRunQuery = `
		INSERT INTO backtest_runs
		(run_id, name, started_at, finished_at, days, final_equity, sharpe,
		 max_drawdown, transitions, data_gaps, summary)
		VALUES (:run_id, :name, :started_at, :finished_at, :days, :final_equity, :sharpe,
		 :max_drawdown, :transitions, :data_gaps, :summary)`

	insertDaysQuery = `
		INSERT INTO backtest_days
		(run_id, day, regime, total_gross, pnl, cost, funding, rls_net, equity)
		VALUES (:run_id, :day, :regime, :total_gross, :pnl, :cost, :funding, :rls_net, :equity)`

	runColumns = `run_id, name, started_at, finished_at, days, final_equity, sharpe,
		max_drawdown, transitions, data_gaps, created_at`
)

// runRepo implements persistence.RunRepo for PostgreSQL
type runRepo struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewRunRepo creates a new PostgreSQL run repository
func NewRunRepo(db *sqlx.DB, timeout time.Duration) persistence.RunRepo {
	return &runRepo{
		db:      db,
		timeout: timeout,
	}
}

// SaveRun writes the run header and its days atomically
func (r *runRepo) SaveRun(ctx context.Context, res *backtest.Result) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rec, err := persistence.NewRunRecord(res)
	if err != nil {
		return err
	}
	days := persistence.NewDayRecords(res.RunID, res.Records)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.NamedExecContext(ctx, insertRunQuery, rec); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", rec.ID, err)
	}
	if len(days) > 0 {
		if _, err := tx.NamedExecContext(ctx, insertDaysQuery, days); err != nil {
			return fmt.Errorf("failed to insert %d days for run %s: %w", len(days), rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run %s: %w", rec.ID, err)
	}
	return nil
}

// GetRun returns the run with its summary document, or nil when absent
func (r *runRepo) GetRun(ctx context.Context, id string) (*persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `SELECT ` + runColumns + `, summary FROM backtest_runs WHERE run_id = $1`

	var rec persistence.RunRecord
	if err := r.db.GetContext(ctx, &rec, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &rec, nil
}

// ListRuns returns run headers without summaries, newest first
func (r *runRepo) ListRuns(ctx context.Context, limit int) ([]persistence.RunRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM backtest_runs ORDER BY started_at DESC LIMIT $1`

	runs := []persistence.RunRecord{}
	if err := r.db.SelectContext(ctx, &runs, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Days returns a run's daily records in date order
func (r *runRepo) Days(ctx context.Context, id string) ([]persistence.DayRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	query := `
		SELECT run_id, day, regime, total_gross, pnl, cost, funding, rls_net, equity
		FROM backtest_days
		WHERE run_id = $1
		ORDER BY day ASC`

	days := []persistence.DayRecord{}
	if err := r.db.SelectContext(ctx, &days, query, id); err != nil {
		return nil, fmt.Errorf("failed to get days for run %s: %w", id, err)
	}
	return days, nil
}
