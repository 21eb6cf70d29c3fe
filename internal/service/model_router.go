package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/domain/cost"
	"github.com/medforge/contentgen/internal/domain/extract"
	"github.com/medforge/contentgen/internal/domain/mode"
	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/observability/metrics"
	"github.com/medforge/contentgen/internal/observability/statsd"
)

// UnstructuredWarning is appended to results whose provider text was not JSON.
const UnstructuredWarning = "provider response was not structured JSON; payload holds raw text"

// ModelRouterOptions groups dependencies for ModelRouter.
type ModelRouterOptions struct {
	Catalog         *mode.Catalog      // Required: mode table and price list
	Providers       []core.Provider    // Required: at least one provider adapter
	DefaultProvider model.ProviderKind // Required: fallback when a preferred provider has no credential
	Logger          *slog.Logger       // Optional: structured logger
	Metrics         statsd.Sink        // Optional: metrics sink
	Now             func() time.Time   // Optional: clock override for tests
}

// Route is the resolved provider and model for one mode.
type Route struct {
	Config         mode.Config
	Provider       core.Provider
	Model          string
	Fallback       bool
	FallbackReason string
}

// ModelRouter maps modes to providers, issues the call and normalizes the response.
type ModelRouter struct {
	catalog         *mode.Catalog
	providers       map[model.ProviderKind]core.Provider
	defaultProvider model.ProviderKind
	logger          *slog.Logger
	metrics         statsd.Sink
	now             func() time.Time
}

// NewModelRouter constructs a ModelRouter.
func NewModelRouter(opts ModelRouterOptions) (*ModelRouter, error) {
	if opts.Catalog == nil {
		return nil, errors.New("mode catalog is required")
	}
	if len(opts.Providers) == 0 {
		return nil, errors.New("at least one provider is required")
	}
	if !opts.DefaultProvider.Valid() {
		return nil, fmt.Errorf("invalid default provider %q", opts.DefaultProvider)
	}

	providers := make(map[model.ProviderKind]core.Provider, len(opts.Providers))
	for _, p := range opts.Providers {
		if p == nil {
			continue
		}
		providers[p.Kind()] = p
	}
	if _, ok := providers[opts.DefaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q has no adapter", opts.DefaultProvider)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &ModelRouter{
		catalog:         opts.Catalog,
		providers:       providers,
		defaultProvider: opts.DefaultProvider,
		logger:          logger.With("component", "model_router"),
		metrics:         opts.Metrics,
		now:             now,
	}, nil
}

// Route resolves the provider for m. When the preferred provider has no credential the
// default provider's default model is used instead. Returns core.ErrMissingCredential
// when neither is usable.
func (r *ModelRouter) Route(m model.Mode) (Route, error) {
	cfg, err := r.catalog.Get(m)
	if err != nil {
		return Route{}, err
	}

	if p, ok := r.providers[cfg.Provider]; ok && p.Configured() {
		return Route{Config: cfg, Provider: p, Model: cfg.Model}, nil
	}

	fallback := r.providers[r.defaultProvider]
	if cfg.Provider == r.defaultProvider || !fallback.Configured() {
		return Route{}, fmt.Errorf("route %s via %s: %w", m, cfg.Provider, core.ErrMissingCredential)
	}
	return Route{
		Config:         cfg,
		Provider:       fallback,
		Model:          r.catalog.DefaultModel(r.defaultProvider),
		Fallback:       true,
		FallbackReason: fmt.Sprintf("%s credential not configured", cfg.Provider),
	}, nil
}

// Generate routes m, renders its prompts from gc, calls the provider and returns the
// normalized result. Cost is always computed from the price table.
func (r *ModelRouter) Generate(
	ctx context.Context,
	m model.Mode,
	gc model.GenerationContext,
) (*model.GenerationResult, error) {
	route, err := r.Route(m)
	if err != nil {
		return nil, err
	}
	return r.GenerateRoute(ctx, route, gc)
}

// GenerateRoute performs the call for an already resolved route.
func (r *ModelRouter) GenerateRoute(
	ctx context.Context,
	route Route,
	gc model.GenerationContext,
) (*model.GenerationResult, error) {
	m := route.Config.Mode
	prompt := route.Config.Render(gc)

	start := time.Now()
	resp, err := route.Provider.Complete(ctx, core.CompletionRequest{
		Mode:         m,
		Model:        route.Model,
		SystemPrompt: prompt.System,
		UserPrompt:   prompt.User,
		MaxTokens:    route.Config.MaxTokens,
		Temperature:  route.Config.Temperature,
	})
	call := metrics.ProviderCall{
		Provider: string(route.Provider.Kind()),
		Mode:     string(m),
		Fallback: route.Fallback,
		Duration: time.Since(start),
	}
	if err != nil {
		call.Result, call.Err = metrics.ResultError, err
		metrics.EmitProviderCall(r.metrics, call)
		r.logger.WarnContext(ctx, "provider call failed",
			"mode", m,
			"provider", route.Provider.Kind(),
			"model", route.Model,
			"error", err,
		)
		return nil, fmt.Errorf("generate %s: %w", m, err)
	}

	res := r.normalize(route, resp)
	call.Result = metrics.ResultSuccess
	call.InputTokens = res.Metadata.Usage.InputTokens
	call.OutputTokens = res.Metadata.Usage.OutputTokens
	call.CostMicros = cost.Micros(res.Metadata.Cost.TotalCost)
	metrics.EmitProviderCall(r.metrics, call)
	return res, nil
}

func (r *ModelRouter) normalize(route Route, resp *core.CompletionResponse) *model.GenerationResult {
	parsed := extract.Parse(resp.Text())

	modelID := resp.Model
	price, ok := r.catalog.Price(modelID)
	if !ok {
		// providers may report a dated variant of the requested model
		modelID = route.Model
		price, _ = r.catalog.Price(modelID)
	}

	res := &model.GenerationResult{
		Mode:       route.Config.Mode,
		Payload:    parsed.Payload,
		Confidence: confidenceOf(parsed.Payload["confidence"]),
		Sources:    stringList(parsed.Payload["sources"]),
		Warnings:   stringList(parsed.Payload["warnings"]),
		Metadata: model.ResultMetadata{
			Provider:       resp.Provider,
			Model:          resp.Model,
			Usage:          resp.Usage,
			Cost:           cost.Compute(resp.Usage, price),
			GeneratedAt:    r.now().UTC(),
			Fallback:       route.Fallback,
			FallbackReason: route.FallbackReason,
			Structured:     parsed.Structured,
		},
	}
	if res.Metadata.Model == "" {
		res.Metadata.Model = modelID
	}
	if !parsed.Structured {
		res.Warnings = append(res.Warnings, UnstructuredWarning)
	}
	return res
}

func confidenceOf(v any) float64 {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) {
		return 0
	}
	return math.Max(0, math.Min(1, f))
}

func stringList(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
