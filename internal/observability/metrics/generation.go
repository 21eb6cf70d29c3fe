package metrics

import (
	"strconv"
	"time"

	obserrors "github.com/medforge/contentgen/internal/observability/errors"
	"github.com/medforge/contentgen/internal/observability/statsd"
)

// ProviderCall describes one outbound LLM call.
type ProviderCall struct {
	Provider     string
	Mode         string
	Result       string
	Fallback     bool
	Duration     time.Duration
	InputTokens  int
	OutputTokens int
	CostMicros   int64
	Err          error
}

// EmitProviderCall emits provider.call, provider.latency, provider.tokens and provider.cost_micros.
func EmitProviderCall(sink statsd.Sink, in ProviderCall) {
	if sink == nil {
		return
	}
	tags := map[string]string{
		"provider": in.Provider,
		"mode":     in.Mode,
		"result":   in.Result,
		"fallback": strconv.FormatBool(in.Fallback),
	}
	if in.Err != nil {
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	sink.Count("provider.call", 1, tags)
	if in.Duration > 0 {
		sink.Timing("provider.latency", in.Duration, CloneTags(tags))
	}
	if in.Result != ResultSuccess {
		return
	}

	base := map[string]string{"provider": in.Provider, "mode": in.Mode}
	if in.InputTokens > 0 {
		t := CloneTags(base)
		t["direction"] = "input"
		sink.Count("provider.tokens", int64(in.InputTokens), t)
	}
	if in.OutputTokens > 0 {
		t := CloneTags(base)
		t["direction"] = "output"
		sink.Count("provider.tokens", int64(in.OutputTokens), t)
	}
	if in.CostMicros > 0 {
		sink.Count("provider.cost_micros", in.CostMicros, CloneTags(base))
	}
}

// Cache lookup outcomes.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// EmitCacheLookup counts one cache lookup by mode and outcome.
func EmitCacheLookup(sink statsd.Sink, mode, outcome string) {
	if sink == nil {
		return
	}
	sink.Count("cache.lookup", 1, map[string]string{"mode": mode, "outcome": outcome})
}

// EmitCacheStore counts one cache write.
func EmitCacheStore(sink statsd.Sink, mode, result string) {
	if sink == nil {
		return
	}
	sink.Count("cache.store", 1, map[string]string{"mode": mode, "result": result})
}

// EmitModeOutcome counts one pipeline step.
func EmitModeOutcome(sink statsd.Sink, mode, status string, cacheHit bool) {
	if sink == nil {
		return
	}
	sink.Count("pipeline.mode", 1, map[string]string{
		"mode":      mode,
		"status":    status,
		"cache_hit": strconv.FormatBool(cacheHit),
	})
}

// EmitRateLimit counts one rate-limit decision.
func EmitRateLimit(sink statsd.Sink, route string, allowed bool) {
	if sink == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	sink.Count("ratelimit.decision", 1, map[string]string{"route": route, "result": result})
}
