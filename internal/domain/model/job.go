// Package model defines the core data types shared by the content generation pipeline.
package model

import (
	"errors"
	"strings"
	"time"
)

// JobStatus represents the current status of a generation job.
type JobStatus string

const (
	// JobStatusPending indicates a job is waiting to be drained.
	JobStatusPending JobStatus = "pending"
	// JobStatusProcessing indicates a worker has claimed the job.
	JobStatusProcessing JobStatus = "processing"
	// JobStatusCompleted indicates every requested mode ran without a hard failure.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job aborted or a mode failed to persist.
	JobStatusFailed JobStatus = "failed"
)

// ErrNoJobsAvailable is returned when no jobs are available for claiming.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Valid returns true if the JobStatus is valid.
func (s JobStatus) Valid() bool {
	return s == JobStatusPending || s == JobStatusProcessing || s == JobStatusCompleted ||
		s == JobStatusFailed
}

// Terminal reports whether s is a final state.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// OutcomeStatus is the per-mode result of one pipeline step.
type OutcomeStatus string

const (
	// OutcomeSucceeded means the mode produced and persisted its output.
	OutcomeSucceeded OutcomeStatus = "succeeded"
	// OutcomeSkipped means the mode's dependency was unavailable.
	OutcomeSkipped OutcomeStatus = "skipped"
	// OutcomeFailed means the mode errored.
	OutcomeFailed OutcomeStatus = "failed"
)

// ModeOutcome records what happened to a single mode inside a job.
type ModeOutcome struct {
	Status   OutcomeStatus `json:"status"`
	Reason   string        `json:"reason,omitempty"`
	Error    string        `json:"error,omitempty"`
	CacheHit bool          `json:"cache_hit"`
	Model    string        `json:"model,omitempty"`
	Cost     float64       `json:"cost,omitempty"`
	Items    int           `json:"items,omitempty"`
}

// JobResult maps each requested mode to its outcome.
type JobResult map[Mode]ModeOutcome

// GenerationJob represents one topic submitted for batch generation.
type GenerationJob struct {
	ID             string     `json:"id"                         db:"id"`
	TopicID        string     `json:"topic_id"                   db:"topic_id"`
	RequestedModes []Mode     `json:"requested_modes"            db:"requested_modes"`
	Status         JobStatus  `json:"status"                     db:"status"`
	Priority       int        `json:"priority"                   db:"priority"`
	SubmittedBy    string     `json:"submitted_by,omitempty"     db:"submitted_by"`
	Attempts       int        `json:"attempts"                   db:"attempts"`
	MaxAttempts    int        `json:"max_attempts"               db:"max_attempts"`
	Result         JobResult  `json:"result,omitempty"           db:"result"`
	ErrorMessage   *string    `json:"error_message,omitempty"    db:"error_message"`
	LeaseExpiresAt *time.Time `json:"lease_expires_at,omitempty" db:"lease_expires_at"`
	CreatedAt      time.Time  `json:"created_at"                 db:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"       db:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"     db:"completed_at"`
	UpdatedAt      time.Time  `json:"updated_at"                 db:"updated_at"`
}

// EnqueueRequest asks for a batch of topics to be queued for generation.
type EnqueueRequest struct {
	TopicIDs     []string `json:"topic_ids"`
	Modes        []Mode   `json:"modes,omitempty"`
	PriorityBase int      `json:"priority_base,omitempty"`
	SubmittedBy  string   `json:"submitted_by,omitempty"`
	MaxAttempts  int      `json:"max_attempts,omitempty"`
}

// Normalize trims topic ids and removes duplicate ids and modes, keeping first occurrence order.
func (r *EnqueueRequest) Normalize() {
	ids := make([]string, 0, len(r.TopicIDs))
	seen := make(map[string]struct{}, len(r.TopicIDs))
	for _, id := range r.TopicIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	r.TopicIDs = ids
	r.Modes = UniqueModes(r.Modes)
}

// UniqueModes drops repeated modes while preserving order.
func UniqueModes(modes []Mode) []Mode {
	out := make([]Mode, 0, len(modes))
	seen := make(map[Mode]struct{}, len(modes))
	for _, m := range modes {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// CreateJobParams is one row handed to the repository by Enqueue.
type CreateJobParams struct {
	TopicID     string
	Modes       []Mode
	Priority    int
	SubmittedBy string
	MaxAttempts int
}

// JobStats represents job counts by status.
type JobStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// ByStatus returns the counts keyed by status name.
func (s JobStats) ByStatus() map[JobStatus]int {
	return map[JobStatus]int{
		JobStatusPending:    s.Pending,
		JobStatusProcessing: s.Processing,
		JobStatusCompleted:  s.Completed,
		JobStatusFailed:     s.Failed,
	}
}

// DrainResult is the per-job summary returned from a drain cycle.
type DrainResult struct {
	JobID   string    `json:"job_id"`
	TopicID string    `json:"topic_id"`
	Status  JobStatus `json:"status"`
	Error   string    `json:"error,omitempty"`
	Result  JobResult `json:"result,omitempty"`
}

// QueueStatus is the read-only aggregate view of the queue.
type QueueStatus struct {
	Counts map[JobStatus]int `json:"counts"`
	Recent []*GenerationJob  `json:"recent"`
}
