// Package reaper provides adapters for running the queue and cache reaper.
package reaper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/medforge/contentgen/config"
	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/data"
	"github.com/medforge/contentgen/internal/observability/statsd"
	"github.com/medforge/contentgen/internal/service"
)

// Runner provides a simple adapter to run the reaper loop.
type Runner struct {
	reaper *service.ReaperService
	logger *slog.Logger
}

// RunnerOptions holds the dependencies for creating a Runner.
type RunnerOptions struct {
	DB     *sql.DB
	Config config.ReaperConfig
	Logger *slog.Logger

	// Cache is purged of expired entries each tick. When nil and DB is set, the Postgres cache table is used.
	Cache core.GenerationCacheRepository
	// CachePurgeBatchSize bounds each purge batch; zero uses Config.BatchSize.
	CachePurgeBatchSize int

	// Optional dependency injection for testing/decoupling
	Repo    core.ReaperRepository
	Metrics statsd.Sink
}

// NewRunner creates a new reaper runner with the given options.
func NewRunner(opts RunnerOptions) (*Runner, error) {
	if err := validateRunnerOptions(&opts); err != nil {
		return nil, err
	}

	reaper, err := wireReaperService(opts)
	if err != nil {
		return nil, fmt.Errorf("wire reaper service: %w", err)
	}

	return &Runner{reaper: reaper, logger: opts.Logger}, nil
}

func validateRunnerOptions(opts *RunnerOptions) error {
	if opts.DB == nil && opts.Repo == nil {
		return errors.New("database connection is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return nil
}

func wireReaperService(opts RunnerOptions) (*service.ReaperService, error) {
	repo := opts.Repo
	if repo == nil {
		repo = data.NewGenerationJobRepo(opts.DB, data.RepoConfig{Logger: opts.Logger})
	}
	cache := opts.Cache
	if cache == nil && opts.DB != nil {
		cache = data.NewGenerationCacheRepo(opts.DB)
	}

	return service.NewReaperService(service.ReaperServiceOptions{
		Repo:   repo,
		Cache:  cache,
		Config: opts.Config,

		CachePurgeBatchSize: opts.CachePurgeBatchSize,
		Logger:              opts.Logger,
		Metrics:             opts.Metrics,
	})
}

// Run starts the reaper loop and runs until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "starting reaper runner")
	return r.reaper.Run(ctx)
}

// RunOnce performs a single cleanup pass.
func (r *Runner) RunOnce(ctx context.Context) (service.ReaperReport, error) {
	return r.reaper.RunOnce(ctx)
}
