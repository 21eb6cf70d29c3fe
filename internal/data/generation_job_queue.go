package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/data/pgxutil"
	"github.com/medforge/contentgen/internal/domain/model"
)

const insertJobSQL = `
  INSERT INTO generation_jobs (topic_id, requested_modes, status, priority, submitted_by, max_attempts, created_at, updated_at)
  VALUES ($1, $2, 'pending', $3, $4, $5, $6, $6)
  RETURNING ` + jobColumns

// CreateBatch inserts every job in one transaction and notifies listeners after commit.
func (r *GenerationJobRepo) CreateBatch(ctx context.Context, params []model.CreateJobParams) ([]*model.GenerationJob, error) {
	if len(params) == 0 {
		return nil, errors.New("at least one job is required")
	}

	now := r.timeProvider.Now().UTC()
	batch := &pgx.Batch{}
	for _, p := range params {
		modes, err := json.Marshal(p.Modes)
		if err != nil {
			return nil, fmt.Errorf("encode modes: %w", err)
		}
		maxAttempts := p.MaxAttempts
		if maxAttempts < 1 {
			maxAttempts = 1
		}
		batch.Queue(insertJobSQL, p.TopicID, modes, p.Priority, p.SubmittedBy, maxAttempts, now)
	}
	batch.Queue(`SELECT pg_notify($1::text, $2::text)`, jobsAddedChannel, fmt.Sprint(len(params)))

	jobs := make([]*model.GenerationJob, 0, len(params))
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Fn: func(tx pgx.Tx) error {
			br := tx.SendBatch(ctx, batch)
			for range params {
				job, err := scanJob(br.QueryRow())
				if err != nil {
					_ = br.Close()
					return fmt.Errorf("insert generation job: %w", err)
				}
				jobs = append(jobs, job)
			}
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("notify %s: %w", jobsAddedChannel, err)
			}
			return br.Close()
		},
	})
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// GetByID retrieves a job by its ID.
func (r *GenerationJobRepo) GetByID(ctx context.Context, id string) (*model.GenerationJob, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM generation_jobs WHERE id = $1`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get generation job: %w", err)
	}
	return job, nil
}

const claimNextSQL = `
  WITH cte AS (
    SELECT id FROM generation_jobs
    WHERE status = 'pending'
    ORDER BY priority DESC, created_at ASC, id ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  UPDATE generation_jobs j
  SET
    status = 'processing',
    attempts = j.attempts + 1,
    started_at = $1,
    lease_expires_at = $2,
    updated_at = $1
  FROM cte
  WHERE j.id = cte.id
  RETURNING j.id, j.topic_id, j.requested_modes, j.status, j.priority, j.submitted_by, j.attempts, j.max_attempts,
            j.result, j.error_message, j.lease_expires_at, j.created_at, j.started_at, j.completed_at, j.updated_at`

// ClaimNext reclaims lapsed leases, then moves the next pending job to processing.
func (r *GenerationJobRepo) ClaimNext(ctx context.Context, leaseSeconds int) (*model.GenerationJob, error) {
	if leaseSeconds <= 0 {
		return nil, errors.New("leaseSeconds must be positive")
	}
	if _, err := r.ReclaimExpiredLeases(ctx); err != nil {
		return nil, fmt.Errorf("reclaim expired leases: %w", err)
	}

	var job *model.GenerationJob
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{
		Opts: &sql.TxOptions{Isolation: sql.LevelReadCommitted},
		Fn: func(tx pgx.Tx) error {
			now := r.timeProvider.Now().UTC()
			lease := now.Add(time.Duration(leaseSeconds) * time.Second)
			j, err := scanJob(tx.QueryRow(ctx, claimNextSQL, now, lease))
			if errors.Is(err, pgx.ErrNoRows) {
				return model.ErrNoJobsAvailable
			}
			if err != nil {
				return fmt.Errorf("claim generation job: %w", err)
			}
			job = j
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Heartbeat extends the lease on a job still held under claim.
func (r *GenerationJobRepo) Heartbeat(ctx context.Context, claim core.JobClaim, leaseSeconds int) (bool, error) {
	if leaseSeconds <= 0 {
		return false, errors.New("leaseSeconds must be positive")
	}
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE generation_jobs
		SET lease_expires_at = $2,
		    updated_at = $3
		WHERE id = $1 AND status = 'processing' AND attempts = $4
	`, claim.JobID, now.Add(time.Duration(leaseSeconds)*time.Second), now, claim.Attempt)
	if err != nil {
		return false, fmt.Errorf("heartbeat job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("heartbeat rows affected: %w", err)
	}
	return n > 0, nil
}

// Complete marks a job held under params.Attempt completed and stores its per-mode results.
func (r *GenerationJobRepo) Complete(ctx context.Context, params core.FinishJobParams) (bool, error) {
	return r.finish(ctx, model.JobStatusCompleted, params)
}

// Fail marks a job held under params.Attempt failed, keeping whatever per-mode results were produced.
func (r *GenerationJobRepo) Fail(ctx context.Context, params core.FinishJobParams) (bool, error) {
	return r.finish(ctx, model.JobStatusFailed, params)
}

func (r *GenerationJobRepo) finish(ctx context.Context, status model.JobStatus, params core.FinishJobParams) (bool, error) {
	result, err := encodeResult(params.Result)
	if err != nil {
		return false, err
	}
	now := r.timeProvider.Now().UTC()
	res, err := r.DB.ExecContext(ctx, `
		UPDATE generation_jobs
		SET status = $2,
		    result = $3,
		    error_message = $4,
		    completed_at = $5,
		    lease_expires_at = NULL,
		    updated_at = $5
		WHERE id = $1 AND status = 'processing' AND attempts = $6
	`, params.JobID, status, result, nullableString(params.ErrorMessage), now, params.Attempt)
	if err != nil {
		return false, fmt.Errorf("mark job %s: %w", status, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// Stats returns job counts by status.
func (r *GenerationJobRepo) Stats(ctx context.Context) (*model.JobStats, error) {
	var s model.JobStats
	err := r.DB.QueryRowContext(ctx, `
  SELECT
    count(*) FILTER (WHERE status = 'pending')    AS pending,
    count(*) FILTER (WHERE status = 'processing') AS processing,
    count(*) FILTER (WHERE status = 'completed')  AS completed,
    count(*) FILTER (WHERE status = 'failed')     AS failed
  FROM generation_jobs
  `).Scan(&s.Pending, &s.Processing, &s.Completed, &s.Failed)
	if err != nil {
		return nil, fmt.Errorf("get job stats: %w", err)
	}
	return &s, nil
}

// ListRecent returns the most recently created jobs.
func (r *GenerationJobRepo) ListRecent(ctx context.Context, limit int) ([]*model.GenerationJob, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.DB.QueryContext(ctx, `
		SELECT `+jobColumns+`
		FROM generation_jobs
		ORDER BY created_at DESC, priority DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.GenerationJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, nil
}

// WaitForNotification blocks until CreateBatch signals new jobs or ctx ends.
func (r *GenerationJobRepo) WaitForNotification(ctx context.Context) error {
	conn, err := r.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("get conn from pool: %w", err)
	}
	defer conn.Close()

	quoted := pgx.Identifier{jobsAddedChannel}.Sanitize()
	if _, err := conn.ExecContext(ctx, "LISTEN "+quoted); err != nil {
		return fmt.Errorf("listen %s: %w", jobsAddedChannel, err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.WithoutCancel(ctx), "UNLISTEN "+quoted)
	}()

	return conn.Raw(func(dc any) error {
		sc, ok := dc.(*stdlib.Conn)
		if !ok {
			return errors.New("unexpected driver connection type; expected *stdlib.Conn")
		}
		_, err := sc.Conn().WaitForNotification(ctx)
		return err
	})
}
