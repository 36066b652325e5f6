package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/target/mmk-reports-api/internal/core"
	"github.com/target/mmk-reports-api/internal/data/pgxutil"
)

// Advisory lock namespace for reaper operations, two-arg form (major, minor).
const (
	advisoryLockReaperMajor          = 2000
	advisoryLockReaperFailProcessing = 1
	advisoryLockReaperDelete         = 2
)

var _ core.ReaperRepository = (*ReportRepo)(nil)

func validateBatch(maxAge int64, batchSize int) error {
	if batchSize <= 0 {
		return errors.New("batch size must be greater than zero")
	}
	if maxAge <= 0 {
		return errors.New("max age must be greater than zero")
	}
	return nil
}

// withReaperLock runs fn in a transaction holding the given advisory lock. If another
// instance holds the lock, fn is skipped and no ids are returned.
func (r *ReportRepo) withReaperLock(ctx context.Context, minor int, fn func(*sql.Tx) ([]int64, error)) ([]int64, error) {
	var ids []int64
	err := pgxutil.WithSQLTx(ctx, r.DB, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			var locked bool
			if err := tx.QueryRowContext(ctx,
				"SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockReaperMajor, minor,
			).Scan(&locked); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !locked {
				r.logger.DebugContext(ctx, "reaper lock held elsewhere", "lock_minor", minor)
				return nil
			}
			var err error
			ids, err = fn(tx)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// FailStaleProcessing fails PROCESSING jobs whose execution started before now-MaxAge.
func (r *ReportRepo) FailStaleProcessing(ctx context.Context, params core.FailStaleParams) ([]int64, error) {
	if err := validateBatch(int64(params.MaxAge), params.BatchSize); err != nil {
		return nil, err
	}
	if params.ErrorMessage == "" {
		return nil, errors.New("error message is required")
	}

	return r.withReaperLock(ctx, advisoryLockReaperFailProcessing, func(tx *sql.Tx) ([]int64, error) {
		now := r.timeProvider.Now()
		cutoff := now.Add(-params.MaxAge)
		rows, err := tx.QueryContext(ctx, `
			UPDATE report_jobs
			SET status = 'FAILED',
			    error_message = $1,
			    updated_at = $2
			WHERE id IN (
				SELECT id FROM report_jobs
				WHERE status = 'PROCESSING'
				  AND COALESCE(started_at, updated_at) < $3
				ORDER BY COALESCE(started_at, updated_at)
				LIMIT $4
				FOR UPDATE SKIP LOCKED
			)
			  AND status = 'PROCESSING'
			RETURNING id
		`, params.ErrorMessage, now, cutoff, params.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("fail stale processing jobs: %w", err)
		}
		return collectIDs(rows)
	})
}

// ListStalePending returns PENDING jobs created before now-MaxAge, oldest first.
func (r *ReportRepo) ListStalePending(ctx context.Context, params core.StaleQueryParams) ([]int64, error) {
	if err := validateBatch(int64(params.MaxAge), params.BatchSize); err != nil {
		return nil, err
	}

	cutoff := r.timeProvider.Now().Add(-params.MaxAge)
	rows, err := r.DB.QueryContext(ctx, `
		SELECT id FROM report_jobs
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`, cutoff, params.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("list stale pending jobs: %w", err)
	}
	return collectIDs(rows)
}

// DeleteFinished deletes terminal jobs of params.Status last updated before now-MaxAge.
func (r *ReportRepo) DeleteFinished(ctx context.Context, params core.DeleteFinishedParams) ([]int64, error) {
	if !params.Status.Terminal() {
		return nil, fmt.Errorf("refusing to delete jobs in non-terminal status %q", params.Status)
	}
	if err := validateBatch(int64(params.MaxAge), params.BatchSize); err != nil {
		return nil, err
	}

	return r.withReaperLock(ctx, advisoryLockReaperDelete, func(tx *sql.Tx) ([]int64, error) {
		cutoff := r.timeProvider.Now().Add(-params.MaxAge)
		rows, err := tx.QueryContext(ctx, `
			DELETE FROM report_jobs
			WHERE id IN (
				SELECT id FROM report_jobs
				WHERE status = $1
				  AND updated_at < $2
				ORDER BY updated_at
				LIMIT $3
			)
			RETURNING id
		`, string(params.Status), cutoff, params.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("delete finished jobs: %w", err)
		}
		return collectIDs(rows)
	})
}

func collectIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}
