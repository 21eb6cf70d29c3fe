package data

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/data/pgxutil"
)

// Advisory lock namespace for queue maintenance.
// Two-arg pg_try_advisory_xact_lock(major, minor); major 1000 is reserved for these operations.
const (
	advisoryLockQueueMajor       = 1000
	advisoryLockReclaimLeases    = 1
	advisoryLockFailStalePending = 2
	advisoryLockDeleteOldJobs    = 3
	advisoryLockPurgeCache       = 4
)

const leaseExpiredMessage = "processing lease expired"

// withAdvisoryLock runs fn inside a transaction holding the given lock. When another
// session holds the lock fn is skipped and ok is false.
func withAdvisoryLock(ctx context.Context, db *sql.DB, minor int, fn func(*sql.Tx) error) (ok bool, err error) {
	err = pgxutil.WithSQLTx(ctx, db, pgxutil.SQLTxConfig{
		Fn: func(tx *sql.Tx) error {
			if err := tx.QueryRowContext(ctx, "SELECT pg_try_advisory_xact_lock($1, $2)", advisoryLockQueueMajor, minor).Scan(&ok); err != nil {
				return fmt.Errorf("acquire advisory lock: %w", err)
			}
			if !ok {
				return nil
			}
			return fn(tx)
		},
	})
	return ok, err
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// ReclaimExpiredLeases returns processing jobs whose lease lapsed to pending, or fails them
// once attempts reached max_attempts.
func (r *GenerationJobRepo) ReclaimExpiredLeases(ctx context.Context) (core.ReclaimResult, error) {
	var out core.ReclaimResult
	_, err := withAdvisoryLock(ctx, r.DB, advisoryLockReclaimLeases, func(tx *sql.Tx) error {
		now := r.timeProvider.Now().UTC()

		res, err := tx.ExecContext(ctx, `
			UPDATE generation_jobs
			SET status = 'failed',
			    error_message = $2,
			    completed_at = $1,
			    lease_expires_at = NULL,
			    updated_at = $1
			WHERE status = 'processing'
			  AND lease_expires_at < $1
			  AND attempts >= max_attempts
		`, now, leaseExpiredMessage)
		if err != nil {
			return fmt.Errorf("fail exhausted leases: %w", err)
		}
		if out.Failed, err = rowsAffected(res); err != nil {
			return err
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE generation_jobs
			SET status = 'pending',
			    lease_expires_at = NULL,
			    updated_at = $1
			WHERE status = 'processing'
			  AND lease_expires_at < $1
			  AND attempts < max_attempts
		`, now)
		if err != nil {
			return fmt.Errorf("requeue expired leases: %w", err)
		}
		out.Requeued, err = rowsAffected(res)
		return err
	})
	if err != nil {
		return core.ReclaimResult{}, err
	}
	if out.Total() > 0 {
		r.logger.WarnContext(ctx, "reclaimed expired leases", "requeued", out.Requeued, "failed", out.Failed)
	}
	return out, nil
}

// FailStalePendingJobs marks pending jobs older than maxAge as failed, up to batchSize per call.
func (r *GenerationJobRepo) FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	var n int64
	_, err := withAdvisoryLock(ctx, r.DB, advisoryLockFailStalePending, func(tx *sql.Tx) error {
		now := r.timeProvider.Now().UTC()
		res, err := tx.ExecContext(ctx, `
			UPDATE generation_jobs
			SET status = 'failed',
			    error_message = 'job timed out in pending status',
			    completed_at = $1,
			    updated_at = $1
			WHERE id IN (
				SELECT id FROM generation_jobs
				WHERE status = 'pending'
				  AND created_at < $2
				ORDER BY created_at
				LIMIT $3
			)
		`, now, now.Add(-maxAge), batchSize)
		if err != nil {
			return fmt.Errorf("fail stale pending jobs: %w", err)
		}
		n, err = rowsAffected(res)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// DeleteOldJobs deletes terminal jobs with the given status older than maxAge, up to BatchSize per call.
func (r *GenerationJobRepo) DeleteOldJobs(ctx context.Context, params core.DeleteOldJobsParams) (int64, error) {
	if !params.Status.Terminal() {
		return 0, fmt.Errorf("refusing to delete jobs in non-terminal status %q", params.Status)
	}
	var n int64
	_, err := withAdvisoryLock(ctx, r.DB, advisoryLockDeleteOldJobs, func(tx *sql.Tx) error {
		cutoff := r.timeProvider.Now().Add(-params.MaxAge).UTC()
		res, err := tx.ExecContext(ctx, `
			DELETE FROM generation_jobs
			WHERE id IN (
				SELECT id FROM generation_jobs
				WHERE status = $1
				  AND completed_at < $2
				ORDER BY completed_at
				LIMIT $3
			)
		`, params.Status, cutoff, params.BatchSize)
		if err != nil {
			return fmt.Errorf("delete old jobs: %w", err)
		}
		n, err = rowsAffected(res)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
