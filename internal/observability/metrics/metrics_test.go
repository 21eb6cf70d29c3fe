package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medforge/contentgen/internal/observability/statsd"
)

func TestEmitJobLifecycle(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitJobLifecycle(rec, JobMetric{
		Transition: TransitionFail,
		Result:     ResultError,
		Duration:   time.Second,
		Err:        errors.New("boom"),
	})

	counts := rec.Named("job.transition")
	require.Len(t, counts, 1)
	assert.Equal(t, "fail", counts[0].Tags["transition"])
	assert.Equal(t, "errors_errorstring", counts[0].Tags["error_class"])
	assert.Len(t, rec.Named("job.duration"), 1)

	EmitJobLifecycle(nil, JobMetric{})
}

func TestEmitProviderCall(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitProviderCall(rec, ProviderCall{
		Provider:     "anthropic",
		Mode:         "fulltext",
		Result:       ResultSuccess,
		Duration:     20 * time.Millisecond,
		InputTokens:  100,
		OutputTokens: 250,
		CostMicros:   4050,
	})

	assert.Len(t, rec.Named("provider.call"), 1)
	assert.Len(t, rec.Named("provider.latency"), 1)
	tokens := rec.Named("provider.tokens")
	require.Len(t, tokens, 2)
	assert.InDelta(t, 100, tokens[0].Value, 0)
	assert.InDelta(t, 250, tokens[1].Value, 0)
	cost := rec.Named("provider.cost_micros")
	require.Len(t, cost, 1)
	assert.InDelta(t, 4050, cost[0].Value, 0)
}

func TestEmitProviderCall_ErrorSkipsUsage(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitProviderCall(rec, ProviderCall{Provider: "gemini", Mode: "flashcards", Result: ResultError, InputTokens: 10, Err: errors.New("x")})
	assert.Len(t, rec.Named("provider.call"), 1)
	assert.Empty(t, rec.Named("provider.tokens"))
}

func TestEmitCacheAndModeAndRateLimit(t *testing.T) {
	rec := &statsd.Recorder{}
	EmitCacheLookup(rec, "fulltext", CacheHit)
	EmitCacheStore(rec, "fulltext", ResultSuccess)
	EmitModeOutcome(rec, "flashcards", "skipped", false)
	EmitRateLimit(rec, "/generate", false)

	assert.Equal(t, "hit", rec.Named("cache.lookup")[0].Tags["outcome"])
	assert.Len(t, rec.Named("cache.store"), 1)
	assert.Equal(t, "false", rec.Named("pipeline.mode")[0].Tags["cache_hit"])
	assert.Equal(t, "denied", rec.Named("ratelimit.decision")[0].Tags["result"])
}

func TestCloneTags(t *testing.T) {
	assert.Nil(t, CloneTags(nil))
	src := map[string]string{"a": "b"}
	cp := CloneTags(src)
	cp["a"] = "c"
	assert.Equal(t, "b", src["a"])
}
