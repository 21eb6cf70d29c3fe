// Package worker runs the background drain loop for the generation queue.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/medforge/contentgen/config"
	"github.com/medforge/contentgen/internal/domain/model"
)

// Drainer claims and processes pending jobs.
type Drainer interface {
	Drain(ctx context.Context, limit int) ([]model.DrainResult, error)
}

// Waiter blocks until new jobs are announced or ctx ends.
type Waiter interface {
	WaitForNotification(ctx context.Context) error
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	Queue  Drainer
	Config config.WorkerConfig
	Logger *slog.Logger

	// Optional: wakes the loop early when jobs are enqueued. Without it the loop polls on Config.Interval.
	Notifications Waiter
}

// Runner drains the queue whenever jobs are announced, and at least once per interval.
type Runner struct {
	queue    Drainer
	waiter   Waiter
	interval time.Duration
	limit    int
	logger   *slog.Logger
}

// NewRunner creates a new worker runner.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if opts.Queue == nil {
		return nil, errors.New("queue is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := opts.Config.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	limit := opts.Config.DrainLimit
	if limit <= 0 {
		limit = 1
	}
	return &Runner{
		queue:    opts.Queue,
		waiter:   opts.Notifications,
		interval: interval,
		limit:    limit,
		logger:   logger.With("component", "worker"),
	}, nil
}

// Run drains until ctx is cancelled. A full drain is followed immediately by another,
// since more jobs are likely pending.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting worker", "interval", r.interval, "drain_limit", r.limit)

	for ctx.Err() == nil {
		n := r.drainOnce(ctx)
		if n >= r.limit {
			continue
		}
		if !r.wait(ctx) {
			break
		}
	}
	r.logger.InfoContext(ctx, "worker stopped")
	return nil
}

func (r *Runner) drainOnce(ctx context.Context) int {
	results, err := r.queue.Drain(ctx, r.limit)
	if err != nil && ctx.Err() == nil {
		r.logger.ErrorContext(ctx, "drain failed", "error", err, "processed", len(results))
	}
	if len(results) == 0 {
		return 0
	}

	var failed int
	for _, res := range results {
		if res.Status == model.JobStatusFailed {
			failed++
		}
	}
	r.logger.InfoContext(ctx, "drain finished", "processed", len(results), "failed", failed)
	if err != nil {
		// a claim error ends the cycle early; back off instead of spinning
		return 0
	}
	return len(results)
}

// wait returns false once ctx is done.
func (r *Runner) wait(ctx context.Context) bool {
	waitCtx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()

	if r.waiter != nil {
		err := r.waiter.WaitForNotification(waitCtx)
		if err == nil {
			return ctx.Err() == nil
		}
		if waitCtx.Err() == nil {
			r.logger.WarnContext(ctx, "job notification wait failed, polling", "error", err)
		}
	}

	<-waitCtx.Done()
	return ctx.Err() == nil
}
