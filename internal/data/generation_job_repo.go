package data

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/medforge/contentgen/internal/domain/model"
)

// jobsAddedChannel is the LISTEN/NOTIFY channel signalled after CreateBatch commits.
const jobsAddedChannel = "generation_jobs_added"

// RepoConfig holds configuration options for the generation job repository.
type RepoConfig struct {
	Logger       *slog.Logger
	TimeProvider TimeProvider
}

// GenerationJobRepo provides database operations for the generation queue.
type GenerationJobRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewGenerationJobRepo creates a new GenerationJobRepo.
func NewGenerationJobRepo(db *sql.DB, cfg RepoConfig) *GenerationJobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &GenerationJobRepo{
		DB:           db,
		timeProvider: tp,
		logger:       logger.With("component", "generation_job_repo"),
	}
}

const jobColumns = `
  id,
  topic_id,
  requested_modes,
  status,
  priority,
  submitted_by,
  attempts,
  max_attempts,
  result,
  error_message,
  lease_expires_at,
  created_at,
  started_at,
  completed_at,
  updated_at
`

type jobRowScanner interface {
	Scan(dest ...any) error
}

type jobRowData struct {
	modes, result                          []byte
	errorMessage                           sql.NullString
	leaseExpiresAt, startedAt, completedAt sql.NullTime
}

func (d *jobRowData) scanInto(scanner jobRowScanner, job *model.GenerationJob) error {
	return scanner.Scan(
		&job.ID,
		&job.TopicID,
		&d.modes,
		&job.Status,
		&job.Priority,
		&job.SubmittedBy,
		&job.Attempts,
		&job.MaxAttempts,
		&d.result,
		&d.errorMessage,
		&d.leaseExpiresAt,
		&job.CreatedAt,
		&d.startedAt,
		&d.completedAt,
		&job.UpdatedAt,
	)
}

func (d *jobRowData) apply(job *model.GenerationJob) error {
	if len(d.modes) > 0 {
		if err := json.Unmarshal(d.modes, &job.RequestedModes); err != nil {
			return fmt.Errorf("decode requested_modes: %w", err)
		}
	}
	if len(d.result) > 0 {
		res := model.JobResult{}
		if err := json.Unmarshal(d.result, &res); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
		if len(res) > 0 {
			job.Result = res
		}
	}
	job.ErrorMessage = cloneNullableString(d.errorMessage)
	job.LeaseExpiresAt = cloneNullableTime(d.leaseExpiresAt)
	job.StartedAt = cloneNullableTime(d.startedAt)
	job.CompletedAt = cloneNullableTime(d.completedAt)
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	return nil
}

func scanJob(scanner jobRowScanner) (*model.GenerationJob, error) {
	job := &model.GenerationJob{}
	var d jobRowData
	if err := d.scanInto(scanner, job); err != nil {
		return nil, err
	}
	if err := d.apply(job); err != nil {
		return nil, err
	}
	return job, nil
}

func encodeResult(res model.JobResult) ([]byte, error) {
	if len(res) == 0 {
		return []byte(`{}`), nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return b, nil
}

func cloneNullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func cloneNullableTime(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func nullableString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
