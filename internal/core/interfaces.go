// Package core declares the ports between the generation services and their adapters.
package core

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/domain/ratelimit"
)

// Repository interfaces live here so services depend on contracts, not on internal/data.

// GenerationJobRepository persists the generation queue.
type GenerationJobRepository interface {
	// CreateBatch inserts all rows in one transaction and returns them in input order.
	CreateBatch(ctx context.Context, params []model.CreateJobParams) ([]*model.GenerationJob, error)
	GetByID(ctx context.Context, id string) (*model.GenerationJob, error)
	// ClaimNext moves the highest-priority, oldest pending job to processing.
	// Returns model.ErrNoJobsAvailable when the queue is empty.
	ClaimNext(ctx context.Context, leaseSeconds int) (*model.GenerationJob, error)
	// Heartbeat, Complete and Fail only touch the job while it is still processing under
	// the claimed attempt; they return false once it was reclaimed or re-claimed.
	Heartbeat(ctx context.Context, claim JobClaim, leaseSeconds int) (bool, error)
	Complete(ctx context.Context, params FinishJobParams) (bool, error)
	Fail(ctx context.Context, params FinishJobParams) (bool, error)
	Stats(ctx context.Context) (*model.JobStats, error)
	ListRecent(ctx context.Context, limit int) ([]*model.GenerationJob, error)
}

// JobClaim identifies one claim of a job. Attempt is the attempts value ClaimNext returned.
type JobClaim struct {
	JobID   string
	Attempt int
}

// FinishJobParams carries the terminal state written by Complete and Fail.
type FinishJobParams struct {
	JobID        string
	Attempt      int
	Result       model.JobResult
	ErrorMessage string
}

// DeleteOldJobsParams groups parameters for DeleteOldJobs to keep param count ≤3.
type DeleteOldJobsParams struct {
	Status    model.JobStatus
	MaxAge    time.Duration
	BatchSize int
}

// ReclaimResult reports what happened to jobs whose processing lease lapsed.
type ReclaimResult struct {
	Requeued int64
	Failed   int64
}

// Total returns the number of jobs touched.
func (r ReclaimResult) Total() int64 {
	return r.Requeued + r.Failed
}

// ReaperRepository defines the queue cleanup operations.
type ReaperRepository interface {
	// ReclaimExpiredLeases returns processing jobs with lapsed leases to pending,
	// or fails them once their attempts are exhausted.
	ReclaimExpiredLeases(ctx context.Context) (ReclaimResult, error)

	// FailStalePendingJobs marks pending jobs older than maxAge as failed.
	// Processes up to batchSize jobs per call to prevent long locks.
	FailStalePendingJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)

	// DeleteOldJobs deletes jobs with the given terminal status older than maxAge.
	DeleteOldJobs(ctx context.Context, params DeleteOldJobsParams) (int64, error)
}

// GenerationCacheRepository is a content-addressed store of generation results.
type GenerationCacheRepository interface {
	// Lookup returns the live entry for key and records the hit. Expired entries are
	// deleted and reported as a miss. A miss returns (nil, nil).
	Lookup(ctx context.Context, key string, now time.Time) (*model.CacheEntry, error)
	// Upsert writes entry, replacing any previous response for the key without resetting hits.
	Upsert(ctx context.Context, entry *model.CacheEntry) error
	// PurgeExpired removes up to batchSize entries that expired before now.
	PurgeExpired(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

// TopicRepository reads topics and writes generated fields back.
type TopicRepository interface {
	GetByID(ctx context.Context, id string) (*model.Topic, error)
	UpdateFullText(ctx context.Context, update model.TopicFullTextUpdate) error
	UpdateHighYield(ctx context.Context, topicID, text string) error
}

// FlashcardRepository bulk inserts generated flashcards.
type FlashcardRepository interface {
	BulkInsert(ctx context.Context, cards []model.Flashcard) (int, error)
}

// QuestionRepository bulk inserts generated quiz questions.
type QuestionRepository interface {
	BulkInsert(ctx context.Context, questions []model.Question) (int, error)
}

// RateLimitStore applies one request to an identity's fixed-window bucket.
type RateLimitStore interface {
	Take(ctx context.Context, identity string, window ratelimit.Window, now time.Time) (model.RateDecision, error)
}

// ErrMissingCredential is returned by providers that have no API key configured.
var ErrMissingCredential = errors.New("provider credential is not configured")

// CompletionRequest is the provider-neutral input of one LLM call.
type CompletionRequest struct {
	Mode         model.Mode
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// CompletionResponse is the provider-neutral output of one LLM call.
type CompletionResponse struct {
	Provider  model.ProviderKind
	Model     string
	Fragments []string
	Usage     model.TokenUsage
}

// Text concatenates every text fragment in order.
func (r *CompletionResponse) Text() string {
	if r == nil {
		return ""
	}
	return strings.Join(r.Fragments, "")
}

// Provider is an LLM backend reached over HTTP.
type Provider interface {
	Kind() model.ProviderKind
	// Configured reports whether the provider has a credential.
	Configured() bool
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
