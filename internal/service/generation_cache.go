package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/domain/cachekey"
	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/observability/metrics"
	"github.com/medforge/contentgen/internal/observability/statsd"
)

// DefaultCacheTTL is used when CacheServiceOptions.TTL is not positive.
const DefaultCacheTTL = 7 * 24 * time.Hour

// CacheServiceOptions groups dependencies for CacheService.
type CacheServiceOptions struct {
	Repo    core.GenerationCacheRepository // Required: cache backend
	TTL     time.Duration                  // Optional: entry lifetime, defaults to DefaultCacheTTL
	Logger  *slog.Logger                   // Optional: structured logger
	Metrics statsd.Sink                    // Optional: metrics sink
	Now     func() time.Time               // Optional: clock override for tests
}

// CacheService is the content-addressed lookaside cache in front of the model router.
// Backend failures are logged and reported as misses; they never fail a generation.
type CacheService struct {
	repo    core.GenerationCacheRepository
	ttl     time.Duration
	logger  *slog.Logger
	metrics statsd.Sink
	now     func() time.Time
}

// NewCacheService constructs a CacheService.
func NewCacheService(opts CacheServiceOptions) (*CacheService, error) {
	if opts.Repo == nil {
		return nil, errors.New("GenerationCacheRepository is required")
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &CacheService{
		repo:    opts.Repo,
		ttl:     ttl,
		logger:  logger.With("component", "generation_cache"),
		metrics: opts.Metrics,
		now:     now,
	}, nil
}

// Lookup returns the cached result for (mode, modelHint, gc) with hit metadata set,
// or (nil, false) on a miss or backend error.
func (s *CacheService) Lookup(
	ctx context.Context,
	mode model.Mode,
	modelHint string,
	gc model.GenerationContext,
) (*model.GenerationResult, bool) {
	key := cachekey.ForContext(mode, modelHint, gc)
	now := s.now().UTC()

	entry, err := s.repo.Lookup(ctx, key, now)
	if err != nil {
		s.logger.WarnContext(ctx, "cache lookup failed", "mode", mode, "key", key, "error", err)
		metrics.EmitCacheLookup(s.metrics, string(mode), metrics.CacheError)
		return nil, false
	}
	if entry == nil {
		metrics.EmitCacheLookup(s.metrics, string(mode), metrics.CacheMiss)
		return nil, false
	}

	var res model.GenerationResult
	if err := json.Unmarshal(entry.Response, &res); err != nil {
		s.logger.WarnContext(ctx, "cache entry undecodable", "mode", mode, "key", key, "error", err)
		metrics.EmitCacheLookup(s.metrics, string(mode), metrics.CacheError)
		return nil, false
	}

	res.Mode = mode
	res.Metadata.CacheHit = true
	res.Metadata.CacheHits = entry.Hits
	if age := now.Sub(entry.CreatedAt); age > 0 {
		res.Metadata.CacheAgeSeconds = int64(age / time.Second)
	}
	metrics.EmitCacheLookup(s.metrics, string(mode), metrics.CacheHit)
	return &res, true
}

// Store writes res under (mode, modelHint, gc) with the configured TTL.
func (s *CacheService) Store(
	ctx context.Context,
	modelHint string,
	gc model.GenerationContext,
	res *model.GenerationResult,
) {
	if res == nil {
		return
	}
	mode := res.Mode
	key := cachekey.ForContext(mode, modelHint, gc)

	stored := *res
	stored.Metadata.CacheHit = false
	stored.Metadata.CacheHits = 0
	stored.Metadata.CacheAgeSeconds = 0

	response, err := json.Marshal(&stored)
	if err != nil {
		s.logger.WarnContext(ctx, "cache entry encode failed", "mode", mode, "error", err)
		metrics.EmitCacheStore(s.metrics, string(mode), metrics.ResultError)
		return
	}
	inputs, err := json.Marshal(cachekey.NormalizeContext(gc.Vars()))
	if err != nil {
		s.logger.WarnContext(ctx, "cache context encode failed", "mode", mode, "error", err)
		metrics.EmitCacheStore(s.metrics, string(mode), metrics.ResultError)
		return
	}

	now := s.now().UTC()
	entry := &model.CacheEntry{
		Key:            key,
		Mode:           mode,
		Context:        inputs,
		Response:       response,
		Model:          res.Metadata.Model,
		TokensUsed:     res.Metadata.Usage.Total(),
		Cost:           res.Metadata.Cost.TotalCost,
		CreatedAt:      now,
		LastAccessedAt: now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.repo.Upsert(ctx, entry); err != nil {
		s.logger.WarnContext(ctx, "cache store failed", "mode", mode, "key", key, "error", err)
		metrics.EmitCacheStore(s.metrics, string(mode), metrics.ResultError)
		return
	}
	metrics.EmitCacheStore(s.metrics, string(mode), metrics.ResultSuccess)
}
