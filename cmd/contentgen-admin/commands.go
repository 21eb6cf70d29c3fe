package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/medforge/contentgen/internal/bootstrap"
	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/service"
)

const (
	defaultMigrationTimeout = 5 * time.Minute
	defaultCommandTimeout   = time.Minute
	// drains wait on provider calls for every claimed job
	defaultDrainTimeout = 30 * time.Minute
)

type migrateOptions struct {
	Timeout time.Duration
}

type enqueueOptions struct {
	Request model.EnqueueRequest
	Timeout time.Duration
}

type drainOptions struct {
	Limit   int
	Timeout time.Duration
}

type statusOptions struct {
	JSON    bool
	Timeout time.Duration
}

type maintenanceOptions struct {
	Timeout time.Duration
}

func newFlagSet(name string, out io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(out)
	return fs
}

func requirePositive(name string, d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("--%s must be greater than zero", name)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseMigrateFlags(args []string) (migrateOptions, error) {
	fs := newFlagSet("migrate", os.Stderr)
	opts := migrateOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultMigrationTimeout, "Maximum duration to wait for migrations to complete")
	if err := fs.Parse(args); err != nil {
		return migrateOptions{}, err
	}
	if err := requirePositive("timeout", opts.Timeout); err != nil {
		return migrateOptions{}, err
	}
	return opts, nil
}

func parseEnqueueFlags(args []string) (enqueueOptions, error) {
	fs := newFlagSet("enqueue", os.Stderr)
	var (
		topics, modes string
		opts          enqueueOptions
	)
	fs.StringVar(&topics, "topics", "", "Comma-separated topic ids, highest priority first")
	fs.StringVar(&modes, "modes", "", "Comma-separated modes (default fulltext,high_yield,flashcards)")
	fs.IntVar(&opts.Request.PriorityBase, "priority-base", 0, "Priority of the last topic; earlier topics rank higher")
	fs.StringVar(&opts.Request.SubmittedBy, "submitted-by", "contentgen-admin", "Identity recorded on the queued jobs")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
	if err := fs.Parse(args); err != nil {
		return enqueueOptions{}, err
	}

	opts.Request.TopicIDs = splitList(topics)
	if len(opts.Request.TopicIDs) == 0 {
		return enqueueOptions{}, errors.New("--topics is required")
	}
	if raw := splitList(modes); len(raw) > 0 {
		parsed, err := model.ParseModes(raw)
		if err != nil {
			return enqueueOptions{}, fmt.Errorf("--modes: %w", err)
		}
		opts.Request.Modes = parsed
	}
	if err := requirePositive("timeout", opts.Timeout); err != nil {
		return enqueueOptions{}, err
	}
	return opts, nil
}

func parseDrainFlags(args []string) (drainOptions, error) {
	fs := newFlagSet("drain", os.Stderr)
	opts := drainOptions{}
	fs.IntVar(&opts.Limit, "limit", 0, "Number of jobs to claim (0 uses QUEUE_DEFAULT_DRAIN)")
	fs.DurationVar(&opts.Timeout, "timeout", defaultDrainTimeout, "Maximum duration for the drain")
	if err := fs.Parse(args); err != nil {
		return drainOptions{}, err
	}
	if opts.Limit < 0 {
		return drainOptions{}, errors.New("--limit must not be negative")
	}
	if err := requirePositive("timeout", opts.Timeout); err != nil {
		return drainOptions{}, err
	}
	return opts, nil
}

func parseStatusFlags(args []string) (statusOptions, error) {
	fs := newFlagSet("status", os.Stderr)
	opts := statusOptions{}
	fs.BoolVar(&opts.JSON, "json", false, "Print the raw status document")
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
	if err := fs.Parse(args); err != nil {
		return statusOptions{}, err
	}
	if err := requirePositive("timeout", opts.Timeout); err != nil {
		return statusOptions{}, err
	}
	return opts, nil
}

func parseMaintenanceFlags(name string, args []string) (maintenanceOptions, error) {
	fs := newFlagSet(name, os.Stderr)
	opts := maintenanceOptions{}
	fs.DurationVar(&opts.Timeout, "timeout", defaultCommandTimeout, "Maximum duration for the command")
	if err := fs.Parse(args); err != nil {
		return maintenanceOptions{}, err
	}
	if err := requirePositive("timeout", opts.Timeout); err != nil {
		return maintenanceOptions{}, err
	}
	return opts, nil
}

func runMigrations(cmdCtx *commandContext, args []string) error {
	opts, err := parseMigrateFlags(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmdCtx.Ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
		DBConfig: cmdCtx.Config.Postgres,
		Logger:   cmdCtx.Logger,
	})
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func(db *sql.DB) {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}(db)

	cmdCtx.Logger.Info("running database migrations")
	if migrateErr := bootstrap.RunMigrations(ctx, db, cmdCtx.Logger); migrateErr != nil {
		return fmt.Errorf("run migrations: %w", migrateErr)
	}
	cmdCtx.Logger.Info("migrations completed successfully")
	return nil
}

func runEnqueue(cmdCtx *commandContext, args []string) error {
	opts, err := parseEnqueueFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		jobs, err := svc.Queue.Enqueue(ctx, opts.Request)
		if err != nil {
			return fmt.Errorf("enqueue: %w", err)
		}
		return printEnqueued(cmdCtx.Out, jobs)
	})
}

func runDrain(cmdCtx *commandContext, args []string) error {
	opts, err := parseDrainFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		results, err := svc.Queue.Drain(ctx, opts.Limit)
		if printErr := printDrainResults(cmdCtx.Out, results); printErr != nil {
			return printErr
		}
		if err != nil {
			return fmt.Errorf("drain: %w", err)
		}
		return nil
	})
}

func runStatus(cmdCtx *commandContext, args []string) error {
	opts, err := parseStatusFlags(args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		status, err := svc.Queue.Status(ctx)
		if err != nil {
			return fmt.Errorf("status: %w", err)
		}
		if opts.JSON {
			enc := json.NewEncoder(cmdCtx.Out)
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		}
		return printQueueStatus(cmdCtx.Out, status)
	})
}

func newMaintenanceReaper(cmdCtx *commandContext, svc bootstrap.ServiceContainer) (*service.ReaperService, error) {
	return service.NewReaperService(service.ReaperServiceOptions{
		Repo:                svc.Jobs,
		Cache:               svc.CacheRepo,
		CachePurgeBatchSize: cmdCtx.Config.Cache.PurgeBatchSize,
		Config:              cmdCtx.Config.Reaper,
		Logger:              cmdCtx.Logger,
	})
}

func runReclaim(cmdCtx *commandContext, args []string) error {
	opts, err := parseMaintenanceFlags("reclaim", args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		reaper, err := newMaintenanceReaper(cmdCtx, svc)
		if err != nil {
			return err
		}
		res, err := reaper.ReclaimLeases(ctx)
		if err != nil {
			return fmt.Errorf("reclaim leases: %w", err)
		}
		return writef(cmdCtx.Out, "requeued %d job(s), failed %d job(s) out of attempts\n", res.Requeued, res.Failed)
	})
}

func runPurgeCache(cmdCtx *commandContext, args []string) error {
	opts, err := parseMaintenanceFlags("purge-cache", args)
	if err != nil {
		return err
	}
	return withServices(cmdCtx, opts.Timeout, func(ctx context.Context, svc bootstrap.ServiceContainer) error {
		reaper, err := newMaintenanceReaper(cmdCtx, svc)
		if err != nil {
			return err
		}
		n, err := reaper.PurgeCache(ctx)
		if err != nil {
			return fmt.Errorf("purge cache: %w", err)
		}
		return writef(cmdCtx.Out, "purged %d expired %s cache entr%s\n", n, cmdCtx.Config.Cache.Backend, plural(n, "y", "ies"))
	})
}

func plural(n int64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
