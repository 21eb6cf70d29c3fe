package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ServiceMode represents the available service modes.
type ServiceMode string

const (
	// ServiceModeHTTP runs the HTTP server.
	ServiceModeHTTP ServiceMode = "http"
	// ServiceModeWorker drains the generation queue on an interval.
	ServiceModeWorker ServiceMode = "worker"
	// ServiceModeReaper runs lease reclaim and retention cleanup.
	ServiceModeReaper ServiceMode = "reaper"
)

// ValidServiceModes returns all valid service mode names.
func ValidServiceModes() []ServiceMode {
	return []ServiceMode{ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper}
}

// ParseServices parses a comma-delimited string of service names and returns the enabled services.
// It validates that all service names are valid and returns an error if any are invalid.
func ParseServices(servicesStr string) (map[ServiceMode]bool, error) {
	services := make(map[ServiceMode]bool)

	if servicesStr == "" {
		return services, errors.New("at least one service must be specified")
	}

	for _, part := range strings.Split(servicesStr, ",") {
		serviceName := strings.TrimSpace(part)
		if serviceName == "" {
			continue
		}

		mode := ServiceMode(serviceName)
		switch mode {
		case ServiceModeHTTP, ServiceModeWorker, ServiceModeReaper:
			services[mode] = true
		default:
			return nil, fmt.Errorf("invalid service name: %q (valid options: http, worker, reaper)", serviceName)
		}
	}

	if len(services) == 0 {
		return nil, errors.New("at least one valid service must be specified")
	}

	return services, nil
}

// QueueConfig contains generation queue limits.
type QueueConfig struct {
	// MaxBatch is the hard cap on topics per enqueue call.
	MaxBatch int `env:"MAX_BATCH" envDefault:"50"`

	// MaxDrain is the largest limit a single drain call accepts.
	MaxDrain int `env:"MAX_DRAIN" envDefault:"10"`

	// DefaultDrain is used when a drain call omits its limit.
	DefaultDrain int `env:"DEFAULT_DRAIN" envDefault:"5"`

	// Concurrency is how many claimed jobs a drain call runs at once. 1 keeps drains sequential.
	Concurrency int `env:"CONCURRENCY" envDefault:"1"`

	// Lease is how long a claimed job stays owned without a heartbeat.
	Lease time.Duration `env:"LEASE" envDefault:"10m"`

	// MaxAttempts bounds how many times a job may be claimed before a lapsed lease fails it.
	MaxAttempts int `env:"MAX_ATTEMPTS" envDefault:"3"`

	// RecentLimit is the number of jobs returned by status.
	RecentLimit int `env:"RECENT_LIMIT" envDefault:"20"`
}

// Sanitize applies guardrails to queue configuration values.
func (q *QueueConfig) Sanitize() {
	if q.MaxBatch < 1 {
		q.MaxBatch = 1
	}
	if q.MaxDrain < 1 {
		q.MaxDrain = 1
	}
	if q.DefaultDrain < 1 {
		q.DefaultDrain = 1
	}
	if q.DefaultDrain > q.MaxDrain {
		q.DefaultDrain = q.MaxDrain
	}
	if q.Concurrency < 1 {
		q.Concurrency = 1
	}
	if q.Concurrency > q.MaxDrain {
		q.Concurrency = q.MaxDrain
	}
	if q.Lease < 30*time.Second {
		q.Lease = 30 * time.Second
	}
	if q.MaxAttempts < 1 {
		q.MaxAttempts = 1
	}
	if q.RecentLimit < 1 {
		q.RecentLimit = 1
	}
	if q.RecentLimit > 200 {
		q.RecentLimit = 200
	}
}

// WorkerConfig contains the background drain loop configuration.
type WorkerConfig struct {
	// Interval is the maximum wait between drains when no enqueue notification arrives.
	Interval time.Duration `env:"INTERVAL" envDefault:"30s"`

	// DrainLimit is the number of jobs claimed per drain.
	DrainLimit int `env:"DRAIN_LIMIT" envDefault:"5"`
}

// Sanitize applies guardrails to worker configuration values.
func (w *WorkerConfig) Sanitize(q QueueConfig) {
	if w.Interval < time.Second {
		w.Interval = time.Second
	}
	if w.DrainLimit < 1 {
		w.DrainLimit = 1
	}
	if w.DrainLimit > q.MaxDrain {
		w.DrainLimit = q.MaxDrain
	}
}

// ReaperConfig contains job reaper service configuration.
type ReaperConfig struct {
	// Interval is the reaper tick interval.
	Interval time.Duration `env:"REAPER_INTERVAL" envDefault:"5m"`

	// PendingMaxAge is the maximum age for pending jobs before they are marked as failed.
	PendingMaxAge time.Duration `env:"REAPER_PENDING_MAX_AGE" envDefault:"24h"`

	// CompletedMaxAge is the maximum age for completed jobs before deletion.
	CompletedMaxAge time.Duration `env:"REAPER_COMPLETED_MAX_AGE" envDefault:"720h"` // 30 days

	// FailedMaxAge is the maximum age for failed jobs before deletion.
	FailedMaxAge time.Duration `env:"REAPER_FAILED_MAX_AGE" envDefault:"720h"` // 30 days

	// BatchSize is the maximum number of rows to process per operation.
	// Batching prevents long locks and I/O spikes on large tables.
	BatchSize int `env:"REAPER_BATCH_SIZE" envDefault:"1000"`
}

// Sanitize applies guardrails to reaper configuration values.
func (r *ReaperConfig) Sanitize() {
	// Enforce minimum intervals to prevent excessive database load
	if r.Interval < 1*time.Minute {
		r.Interval = 1 * time.Minute
	}
	if r.PendingMaxAge < 5*time.Minute {
		r.PendingMaxAge = 5 * time.Minute
	}
	if r.CompletedMaxAge < 1*time.Hour {
		r.CompletedMaxAge = 1 * time.Hour
	}
	if r.FailedMaxAge < 1*time.Hour {
		r.FailedMaxAge = 1 * time.Hour
	}

	if r.BatchSize < 1 {
		r.BatchSize = 1
	}
	if r.BatchSize > 10000 {
		r.BatchSize = 10000
	}
}
