package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/domain/ratelimit"
)

// RateLimiterOptions groups dependencies for RateLimiter.
type RateLimiterOptions struct {
	Store  core.RateLimitStore // Required: bucket store (memory or redis)
	Window ratelimit.Window    // Required: limit per window
	Logger *slog.Logger        // Optional: structured logger
	Now    func() time.Time    // Optional: clock override for tests
}

// RateLimiter gates requests per identity with a fixed window.
//
// With the in-memory store every process counts separately, so a deployment of
// N replicas admits up to N times the limit. Use the redis store for a shared count.
type RateLimiter struct {
	store  core.RateLimitStore
	window ratelimit.Window
	logger *slog.Logger
	now    func() time.Time
}

// NewRateLimiter constructs a RateLimiter.
func NewRateLimiter(opts RateLimiterOptions) (*RateLimiter, error) {
	if opts.Store == nil {
		return nil, errors.New("RateLimitStore is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		store:  opts.Store,
		window: opts.Window.Normalize(),
		logger: logger.With("component", "rate_limiter"),
		now:    now,
	}, nil
}

// Allow records one request for identity. When the store is unavailable the request
// is allowed and the failure logged, so a cache outage does not take the API down.
func (l *RateLimiter) Allow(ctx context.Context, identity string) model.RateDecision {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = "anonymous"
	}

	decision, err := l.store.Take(ctx, identity, l.window, l.now())
	if err != nil {
		l.logger.WarnContext(ctx, "rate limit store failed, allowing request", "identity", identity, "error", err)
		return model.RateDecision{Allowed: true}
	}
	if !decision.Allowed && decision.RetryAfter <= 0 {
		// round trips can land exactly on the boundary
		decision.RetryAfter = time.Second
	}
	return decision
}

// Window returns the configured window.
func (l *RateLimiter) Window() ratelimit.Window {
	return l.window
}
