package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medforge/contentgen/config"
	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/domain/model"
	obserrors "github.com/medforge/contentgen/internal/observability/errors"
	"github.com/medforge/contentgen/internal/observability/metrics"
	"github.com/medforge/contentgen/internal/observability/statsd"
)

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo                core.ReaperRepository          // Required: queue cleanup repository
	Cache               core.GenerationCacheRepository // Optional: cache backend purged of expired entries
	CachePurgeBatchSize int                            // Optional: rows per purge batch, defaults to Config.BatchSize
	Config              config.ReaperConfig            // Required: reaper configuration
	Logger              *slog.Logger                   // Optional: structured logger
	Metrics             statsd.Sink                    // Optional: metrics sink (StatsD-compatible)
	Now                 func() time.Time               // Optional: clock used for cache expiry
}

// ReaperService keeps the generation queue and cache healthy.
//
// Each tick it:
// - returns jobs whose processing lease lapsed to pending, or fails them once attempts run out.
// - fails pending jobs that were never picked up.
// - deletes old completed and failed jobs.
// - purges expired cache entries.
type ReaperService struct {
	repo    core.ReaperRepository
	cache   core.GenerationCacheRepository
	purge   int
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// ReaperReport summarizes one cleanup pass.
type ReaperReport struct {
	Requeued    int64         `json:"requeued"`
	LeaseFailed int64         `json:"lease_failed"`
	StaleFailed int64         `json:"stale_failed"`
	Completed   int64         `json:"completed_deleted"`
	Failed      int64         `json:"failed_deleted"`
	CachePurged int64         `json:"cache_purged"`
	Elapsed     time.Duration `json:"-"`
}

// Total returns the number of rows touched.
func (r ReaperReport) Total() int64 {
	return r.Requeued + r.LeaseFailed + r.StaleFailed + r.Completed + r.Failed + r.CachePurged
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	var logger *slog.Logger
	if opts.Logger != nil {
		logger = opts.Logger.With("component", "reaper_service")
		logger.Debug("ReaperService initialized",
			"interval", opts.Config.Interval,
			"pending_max_age", opts.Config.PendingMaxAge,
			"completed_max_age", opts.Config.CompletedMaxAge,
			"failed_max_age", opts.Config.FailedMaxAge,
			"cache_purge", opts.Cache != nil,
		)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	purge := opts.CachePurgeBatchSize
	if purge < 1 {
		purge = max(opts.Config.BatchSize, 1)
	}

	return &ReaperService{
		repo:    opts.Repo,
		cache:   opts.Cache,
		purge:   purge,
		config:  opts.Config,
		logger:  logger,
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	if s.logger != nil {
		s.logger.InfoContext(ctx, "starting reaper service", "interval", s.config.Interval)
	}

	// Add jitter to prevent thundering herd if multiple instances start together
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logCleanupError(err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			if s.logger != nil {
				s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()

		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logCleanupError(err, "cleanup")
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		if s.logger != nil {
			s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		}
		return
	}

	jitterNanos := binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)
	jitter := time.Duration(int64(jitterNanos)) // #nosec G115 - bounded by maxJitter which is int64

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

type cleanupStep struct {
	operation string
	label     string
	fn        func(context.Context, *ReaperReport) (int64, error)
}

func (s *ReaperService) steps() []cleanupStep {
	return []cleanupStep{
		{operation: "reclaim_leases", label: "reclaim expired leases", fn: s.reclaimStep},
		{operation: "fail_pending", label: "fail stale pending jobs", fn: s.failPendingStep},
		{operation: "delete_completed", label: "delete old completed jobs", fn: s.deleteStep(model.JobStatusCompleted)},
		{operation: "delete_failed", label: "delete old failed jobs", fn: s.deleteStep(model.JobStatusFailed)},
		{operation: "purge_cache", label: "purge expired cache entries", fn: s.purgeCacheStep},
	}
}

// RunOnce performs every cleanup step once. A failing step does not stop the others.
func (s *ReaperService) RunOnce(ctx context.Context) (ReaperReport, error) {
	start := time.Now()
	var (
		report      ReaperReport
		errs        []error
		allCanceled = true
		firstErr    error
	)

	for _, step := range s.steps() {
		count, err := step.fn(ctx, &report)
		s.emitOperationMetric(step.operation, count, suppressContextCancellation(err))
		if err == nil {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %w", step.label, err))
		allCanceled = allCanceled && isContextCancellation(err)
		if firstErr == nil && !isContextCancellation(err) {
			firstErr = err
		}
	}

	report.Elapsed = time.Since(start)
	s.emitCleanupMetrics(report, firstErr)

	if len(errs) > 0 {
		joined := errors.Join(errs...)
		if allCanceled {
			return report, context.Canceled
		}
		return report, fmt.Errorf("cleanup failed: %w", joined)
	}
	return report, nil
}

// ReclaimLeases runs only the lease reclaim step.
func (s *ReaperService) ReclaimLeases(ctx context.Context) (core.ReclaimResult, error) {
	var report ReaperReport
	if _, err := s.reclaimStep(ctx, &report); err != nil {
		return core.ReclaimResult{}, err
	}
	return core.ReclaimResult{Requeued: report.Requeued, Failed: report.LeaseFailed}, nil
}

// PurgeCache runs only the cache purge step.
func (s *ReaperService) PurgeCache(ctx context.Context) (int64, error) {
	var report ReaperReport
	return s.purgeCacheStep(ctx, &report)
}

func (s *ReaperService) reclaimStep(ctx context.Context, report *ReaperReport) (int64, error) {
	res, err := s.repo.ReclaimExpiredLeases(ctx)
	if err != nil {
		return 0, err
	}
	report.Requeued, report.LeaseFailed = res.Requeued, res.Failed
	if res.Total() > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "reclaimed expired leases",
			"requeued", res.Requeued,
			"failed", res.Failed,
		)
	}
	return res.Total(), nil
}

func (s *ReaperService) failPendingStep(ctx context.Context, report *ReaperReport) (int64, error) {
	total, err := drainBatches(ctx, func(ctx context.Context) (int64, error) {
		return s.repo.FailStalePendingJobs(ctx, s.config.PendingMaxAge, s.config.BatchSize)
	})
	report.StaleFailed = total
	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "failed stale pending jobs",
			"count", total,
			"max_age", s.config.PendingMaxAge,
		)
	}
	return total, err
}

func (s *ReaperService) deleteStep(status model.JobStatus) func(context.Context, *ReaperReport) (int64, error) {
	maxAge := s.config.CompletedMaxAge
	if status == model.JobStatusFailed {
		maxAge = s.config.FailedMaxAge
	}
	return func(ctx context.Context, report *ReaperReport) (int64, error) {
		total, err := drainBatches(ctx, func(ctx context.Context) (int64, error) {
			return s.repo.DeleteOldJobs(ctx, core.DeleteOldJobsParams{
				Status:    status,
				MaxAge:    maxAge,
				BatchSize: s.config.BatchSize,
			})
		})
		if status == model.JobStatusFailed {
			report.Failed = total
		} else {
			report.Completed = total
		}
		if total > 0 && s.logger != nil {
			s.logger.InfoContext(ctx, "deleted old jobs",
				"status", status,
				"count", total,
				"max_age", maxAge,
			)
		}
		return total, err
	}
}

func (s *ReaperService) purgeCacheStep(ctx context.Context, report *ReaperReport) (int64, error) {
	if s.cache == nil {
		return 0, nil
	}
	total, err := drainBatches(ctx, func(ctx context.Context) (int64, error) {
		return s.cache.PurgeExpired(ctx, s.now().UTC(), s.purge)
	})
	report.CachePurged = total
	if total > 0 && s.logger != nil {
		s.logger.InfoContext(ctx, "purged expired cache entries", "count", total)
	}
	return total, err
}

// drainBatches calls fn until it affects no rows, checking ctx between batches.
func drainBatches(ctx context.Context, fn func(context.Context) (int64, error)) (int64, error) {
	var total int64
	for {
		count, err := fn(ctx)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			return total, nil
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}
}

func (s *ReaperService) emitCleanupMetrics(report ReaperReport, firstErr error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if firstErr != nil {
		result = metrics.ResultError
	} else if report.Total() == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{"result": result}
	if firstErr != nil {
		if class := obserrors.Classify(firstErr); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if report.Elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", report.Elapsed, metrics.CloneTags(tags))
	}
	if firstErr == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) emitOperationMetric(operation string, count int64, err error) {
	if s.metrics == nil {
		return
	}

	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	} else if count == 0 {
		result = metrics.ResultNoop
	}

	tags := map[string]string{
		"operation": operation,
		"result":    result,
	}
	if err != nil {
		if class := obserrors.Classify(err); class != "" {
			tags["error_class"] = class
		}
	}

	s.metrics.Count("reaper.cleanup_operation", 1, tags)
	if err == nil && count > 0 {
		s.metrics.Count("reaper.rows_processed", count, metrics.CloneTags(tags))
	}
}

func (s *ReaperService) logCleanupError(err error, label string) {
	if err == nil || s.logger == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.Debug(label+" cancelled by context", "error", err)
		return
	}
	s.logger.Error(label+" failed", "error", err)
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func suppressContextCancellation(err error) error {
	if isContextCancellation(err) {
		return nil
	}
	return err
}
