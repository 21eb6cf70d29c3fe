package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/medforge/contentgen/config"
	"github.com/medforge/contentgen/internal/adapters/reaper"
	"github.com/medforge/contentgen/internal/adapters/worker"
	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/observability/statsd"
)

// WorkerConfig contains configuration for the queue worker.
type WorkerConfig struct {
	Queue         worker.Drainer
	Notifications worker.Waiter
	Config        config.WorkerConfig
	Logger        *slog.Logger
}

// RunWorker drains the generation queue until ctx is cancelled.
func RunWorker(ctx context.Context, cfg WorkerConfig) error {
	runner, err := worker.NewRunner(worker.RunnerOptions{
		Queue:         cfg.Queue,
		Config:        cfg.Config,
		Logger:        cfg.Logger,
		Notifications: cfg.Notifications,
	})
	if err != nil {
		return fmt.Errorf("create worker runner: %w", err)
	}

	return runner.Run(ctx)
}

// ReaperConfig contains configuration for reaper.
type ReaperConfig struct {
	DB      *sql.DB
	Cache   core.GenerationCacheRepository
	Purge   int
	Logger  *slog.Logger
	Config  config.ReaperConfig
	Metrics statsd.Sink
}

// RunReaper runs the reaper service.
func RunReaper(ctx context.Context, cfg ReaperConfig) error {
	runner, err := reaper.NewRunner(reaper.RunnerOptions{
		DB:      cfg.DB,
		Cache:   cfg.Cache,
		Config:  cfg.Config,
		Logger:  cfg.Logger,
		Metrics: cfg.Metrics,

		CachePurgeBatchSize: cfg.Purge,
	})
	if err != nil {
		return fmt.Errorf("create reaper runner: %w", err)
	}

	return runner.Run(ctx)
}
