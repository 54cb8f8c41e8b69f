package runs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// PGRepo implements Repo using Postgres. Failures are stored as JSONB.
type PGRepo struct {
	DB *sql.DB
}

const runColumns = `id, started_at, finished_at, discovered, skipped, attempted, succeeded, failed,
    cancelled, not_started, interrupted, failures`

// Create inserts a run.
func (r *PGRepo) Create(ctx context.Context, run Run) error {
	failures := run.Failures
	if failures == nil {
		failures = []Failure{}
	}
	payload, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("encode failures: %w", err)
	}

	const query = `
INSERT INTO batch_runs (` + runColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
	_, err = r.DB.ExecContext(ctx, query,
		run.ID,
		run.StartedAt,
		run.FinishedAt,
		run.Discovered,
		run.Skipped,
		run.Attempted,
		run.Succeeded,
		run.Failed,
		run.Cancelled,
		run.NotStarted,
		run.Interrupted,
		payload,
	)
	return err
}

// GetByID returns a run by ID.
func (r *PGRepo) GetByID(ctx context.Context, id string) (Run, error) {
	const query = `
SELECT ` + runColumns + `
FROM batch_runs
WHERE id = $1
LIMIT 1`
	run, err := scanRun(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, ErrNotFound
		}
		return Run{}, err
	}
	return run, nil
}

// ListRecent lists runs ordered newest-first.
func (r *PGRepo) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	const query = `
SELECT ` + runColumns + `
FROM batch_runs
ORDER BY started_at DESC
LIMIT $1`

	rows, err := r.DB.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		run      Run
		failures []byte
	)
	if err := row.Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&run.Discovered,
		&run.Skipped,
		&run.Attempted,
		&run.Succeeded,
		&run.Failed,
		&run.Cancelled,
		&run.NotStarted,
		&run.Interrupted,
		&failures,
	); err != nil {
		return Run{}, err
	}
	run.Failures = []Failure{}
	if len(failures) > 0 {
		if err := json.Unmarshal(failures, &run.Failures); err != nil {
			return Run{}, fmt.Errorf("decode failures for run %s: %w", run.ID, err)
		}
	}
	return run, nil
}

var _ Repo = (*PGRepo)(nil)
