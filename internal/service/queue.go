package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/medforge/contentgen/config"
	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/domain/job"
	"github.com/medforge/contentgen/internal/domain/model"
	apperrors "github.com/medforge/contentgen/internal/errors"
	obserrors "github.com/medforge/contentgen/internal/observability/errors"
	"github.com/medforge/contentgen/internal/observability/metrics"
	"github.com/medforge/contentgen/internal/observability/notify"
	"github.com/medforge/contentgen/internal/observability/statsd"
)

const (
	maxJobErrorLen = 1000
	finishTimeout  = 10 * time.Second
)

// QueueServiceOptions groups dependencies for QueueService.
type QueueServiceOptions struct {
	Repo     core.GenerationJobRepository // Required: queue storage
	Pipeline core.PipelineRunner          // Required: per-job orchestrator
	Config   config.QueueConfig           // Required: batch, drain and lease limits
	Notifier core.JobFailureNotifier      // Optional: failed job fan-out
	Logger   *slog.Logger                 // Optional: structured logger
	Metrics  statsd.Sink                  // Optional: metrics sink
}

// QueueService is the durable, priority-ordered generation queue.
type QueueService struct {
	repo     core.GenerationJobRepository
	pipeline core.PipelineRunner
	cfg      config.QueueConfig
	lease    *job.LeasePolicy
	notifier core.JobFailureNotifier
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewQueueService constructs a QueueService.
func NewQueueService(opts QueueServiceOptions) (*QueueService, error) {
	if opts.Repo == nil {
		return nil, errors.New("GenerationJobRepository is required")
	}
	if opts.Pipeline == nil {
		return nil, errors.New("PipelineRunner is required")
	}
	cfg := opts.Config
	cfg.Sanitize()
	lease, err := job.NewLeasePolicy(cfg.Lease, cfg.MaxAttempts)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &QueueService{
		repo:     opts.Repo,
		pipeline: opts.Pipeline,
		cfg:      cfg,
		lease:    lease,
		notifier: opts.Notifier,
		logger:   logger.With("component", "queue"),
		metrics:  opts.Metrics,
	}, nil
}

// Enqueue queues one job per topic. Earlier topics get higher priority so they drain first.
func (s *QueueService) Enqueue(ctx context.Context, req model.EnqueueRequest) ([]*model.GenerationJob, error) {
	req.Normalize()
	if len(req.TopicIDs) == 0 {
		return nil, apperrors.ValidationField("topic_ids", "at least one topic id is required")
	}
	if len(req.TopicIDs) > s.cfg.MaxBatch {
		return nil, apperrors.ValidationField("topic_ids",
			fmt.Sprintf("at most %d topic ids per request, got %d", s.cfg.MaxBatch, len(req.TopicIDs)))
	}
	modes := req.Modes
	if len(modes) == 0 {
		modes = model.DefaultModes()
	}
	for _, m := range modes {
		if !m.Valid() {
			return nil, apperrors.ValidationField("modes", fmt.Sprintf("unknown mode %q", m))
		}
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = s.lease.MaxAttempts()
	}

	n := len(req.TopicIDs)
	params := make([]model.CreateJobParams, n)
	for i, topicID := range req.TopicIDs {
		params[i] = model.CreateJobParams{
			TopicID:     topicID,
			Modes:       modes,
			Priority:    req.PriorityBase + (n - 1 - i),
			SubmittedBy: req.SubmittedBy,
			MaxAttempts: maxAttempts,
		}
	}

	jobs, err := s.repo.CreateBatch(ctx, params)
	if err != nil {
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: metrics.TransitionEnqueue,
			Result:     metrics.ResultError,
			Err:        err,
		})
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	for range jobs {
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: metrics.TransitionEnqueue,
			Result:     metrics.ResultSuccess,
		})
	}
	s.logger.InfoContext(ctx, "jobs enqueued", "count", len(jobs), "submitted_by", req.SubmittedBy)
	return jobs, nil
}

// ResolveDrainLimit applies the default and validates the upper bound.
func (s *QueueService) ResolveDrainLimit(limit int) (int, error) {
	if limit == 0 {
		return s.cfg.DefaultDrain, nil
	}
	if limit < 0 || limit > s.cfg.MaxDrain {
		return 0, apperrors.ValidationField("limit", fmt.Sprintf("limit must be between 0 and %d", s.cfg.MaxDrain))
	}
	return limit, nil
}

// Drain claims up to limit pending jobs and runs each through the pipeline. Results are
// returned in claim order. One job's failure or panic never affects another.
func (s *QueueService) Drain(ctx context.Context, limit int) ([]model.DrainResult, error) {
	limit, err := s.ResolveDrainLimit(limit)
	if err != nil {
		return nil, err
	}

	var (
		mu       sync.Mutex
		results  []model.DrainResult
		g        errgroup.Group
		slots    = make(chan struct{}, s.cfg.Concurrency)
		claimErr error
	)

	for range limit {
		// a slot is taken before claiming so no job sits claimed while waiting to run
		select {
		case slots <- struct{}{}:
		case <-ctx.Done():
		}
		if err := ctx.Err(); err != nil {
			claimErr = err
			break
		}

		claimed, err := s.claim(ctx)
		if err != nil {
			<-slots
			if !errors.Is(err, model.ErrNoJobsAvailable) {
				claimErr = err
			}
			break
		}

		mu.Lock()
		idx := len(results)
		results = append(results, model.DrainResult{JobID: claimed.ID, TopicID: claimed.TopicID, Status: model.JobStatusProcessing})
		mu.Unlock()

		g.Go(func() error {
			defer func() { <-slots }()
			res := s.process(ctx, claimed)
			mu.Lock()
			results[idx] = res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	if claimErr != nil {
		return results, fmt.Errorf("drain: %w", claimErr)
	}
	return results, nil
}

func (s *QueueService) claim(ctx context.Context) (*model.GenerationJob, error) {
	claimed, err := s.repo.ClaimNext(ctx, s.lease.Seconds())
	switch {
	case errors.Is(err, model.ErrNoJobsAvailable):
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: metrics.TransitionClaim, Result: metrics.ResultNoop})
		return nil, err
	case err != nil:
		metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
			Transition: metrics.TransitionClaim,
			Result:     metrics.ResultError,
			Err:        err,
		})
		return nil, fmt.Errorf("claim job: %w", err)
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{Transition: metrics.TransitionClaim, Result: metrics.ResultSuccess})
	return claimed, nil
}

// errLeaseLost is reported when a job was reclaimed while this worker still ran it.
const errLeaseLost = "processing lease lost; job was reclaimed"

func (s *QueueService) process(ctx context.Context, j *model.GenerationJob) model.DrainResult {
	logger := s.logger.With("job_id", j.ID, "topic_id", j.TopicID)
	start := time.Now()

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	var hb sync.WaitGroup
	hb.Add(1)
	go func() {
		defer hb.Done()
		s.heartbeat(hbCtx, core.JobClaim{JobID: j.ID, Attempt: j.Attempts}, logger)
	}()

	result, runErr := s.runPipeline(ctx, j)
	stopHeartbeat()
	hb.Wait()

	out := model.DrainResult{JobID: j.ID, TopicID: j.TopicID, Result: result}

	if ctx.Err() != nil {
		// the caller gave up; the lease lapses and the reaper requeues the job
		logger.WarnContext(ctx, "drain canceled mid-job, leaving job for reclaim", "error", ctx.Err())
		out.Status = model.JobStatusProcessing
		if runErr != nil {
			out.Error = runErr.Error()
		}
		return out
	}

	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	params := core.FinishJobParams{JobID: j.ID, Attempt: j.Attempts, Result: result}
	if runErr == nil {
		ok, err := s.repo.Complete(finishCtx, params)
		s.emitFinish(metrics.TransitionComplete, ok, err, time.Since(start))
		if err != nil {
			logger.ErrorContext(ctx, "failed to mark job completed", "error", err)
			out.Status, out.Error = model.JobStatusProcessing, err.Error()
			return out
		}
		if !ok {
			logger.WarnContext(ctx, "job no longer owned at completion", "attempt", j.Attempts)
			out.Status, out.Error = model.JobStatusProcessing, errLeaseLost
			return out
		}
		out.Status = model.JobStatusCompleted
		logger.InfoContext(ctx, "job completed", "duration", time.Since(start))
		return out
	}

	params.ErrorMessage = truncateError(runErr.Error())
	ok, err := s.repo.Fail(finishCtx, params)
	s.emitFinish(metrics.TransitionFail, ok, err, time.Since(start))
	out.Status, out.Error = model.JobStatusFailed, params.ErrorMessage
	if err != nil {
		logger.ErrorContext(ctx, "failed to mark job failed", "error", err)
		out.Status = model.JobStatusProcessing
		return out
	}
	if !ok {
		logger.WarnContext(ctx, "job no longer owned at failure", "attempt", j.Attempts, "error", runErr)
		out.Status, out.Error = model.JobStatusProcessing, errLeaseLost+": "+params.ErrorMessage
		return out
	}
	logger.WarnContext(ctx, "job failed", "error", runErr, "duration", time.Since(start))
	s.notifyFailure(finishCtx, j, runErr)
	return out
}

func (s *QueueService) runPipeline(ctx context.Context, j *model.GenerationJob) (result model.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "pipeline panic",
				"job_id", j.ID,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("pipeline panic: %v", r)
		}
	}()
	return s.pipeline.Run(ctx, j.TopicID, j.RequestedModes)
}

func (s *QueueService) heartbeat(ctx context.Context, claim core.JobClaim, logger *slog.Logger) {
	ticker := time.NewTicker(s.lease.HeartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := s.repo.Heartbeat(ctx, claim, s.lease.Seconds())
			if err != nil {
				if ctx.Err() == nil {
					logger.WarnContext(ctx, "heartbeat failed", "error", err)
				}
				continue
			}
			if !ok {
				logger.WarnContext(ctx, "heartbeat found job no longer held", "attempt", claim.Attempt)
				return
			}
		}
	}
}

func (s *QueueService) emitFinish(transition string, ok bool, err error, d time.Duration) {
	result := metrics.ResultSuccess
	switch {
	case err != nil:
		result = metrics.ResultError
	case !ok:
		result = metrics.ResultNoop
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: transition,
		Result:     result,
		Duration:   d,
		Err:        err,
	})
}

func (s *QueueService) notifyFailure(ctx context.Context, j *model.GenerationJob, runErr error) {
	if s.notifier == nil {
		return
	}
	modes := make([]string, len(j.RequestedModes))
	for i, m := range j.RequestedModes {
		modes[i] = string(m)
	}
	s.notifier.NotifyJobFailure(ctx, notify.JobFailurePayload{
		JobID:       j.ID,
		TopicID:     j.TopicID,
		Modes:       modes,
		Attempts:    j.Attempts,
		SubmittedBy: j.SubmittedBy,
		Error:       truncateError(runErr.Error()),
		ErrorClass:  obserrors.Classify(runErr),
	})
}

// Status returns job counts by status and the most recent jobs. It has no side effects.
func (s *QueueService) Status(ctx context.Context) (*model.QueueStatus, error) {
	stats, err := s.repo.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	recent, err := s.repo.ListRecent(ctx, s.cfg.RecentLimit)
	if err != nil {
		return nil, fmt.Errorf("recent jobs: %w", err)
	}
	if recent == nil {
		recent = []*model.GenerationJob{}
	}
	return &model.QueueStatus{Counts: stats.ByStatus(), Recent: recent}, nil
}

func truncateError(msg string) string {
	if len(msg) <= maxJobErrorLen {
		return msg
	}
	return msg[:maxJobErrorLen] + "..."
}
