package model

import (
	"strings"
	"time"
)

// GenerationContext is the input a mode's prompt templates are filled from.
type GenerationContext struct {
	Specialty      string `json:"specialty"`
	ParentGrouping string `json:"parent_grouping"`
	Title          string `json:"title"`
	FullText       string `json:"full_text,omitempty"`
}

// Vars returns the template substitution variables for the context.
func (c GenerationContext) Vars() map[string]string {
	return map[string]string{
		"specialty":       strings.TrimSpace(c.Specialty),
		"parent_grouping": strings.TrimSpace(c.ParentGrouping),
		"title":           strings.TrimSpace(c.Title),
		"full_text":       strings.TrimSpace(c.FullText),
	}
}

// TokenUsage is the provider-reported token consumption of one call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// CostBreakdown is the monetary cost of one call, computed locally from a price table.
type CostBreakdown struct {
	InputCost  float64 `json:"input_cost"`
	OutputCost float64 `json:"output_cost"`
	TotalCost  float64 `json:"total_cost"`
}

// ResultMetadata describes where a GenerationResult came from.
type ResultMetadata struct {
	Provider        ProviderKind  `json:"provider"`
	Model           string        `json:"model"`
	Usage           TokenUsage    `json:"usage"`
	Cost            CostBreakdown `json:"cost"`
	GeneratedAt     time.Time     `json:"generated_at"`
	CacheHit        bool          `json:"cache_hit"`
	CacheAgeSeconds int64         `json:"cache_age_seconds,omitempty"`
	CacheHits       int           `json:"cache_hits,omitempty"`
	Fallback        bool          `json:"fallback"`
	FallbackReason  string        `json:"fallback_reason,omitempty"`
	Structured      bool          `json:"structured"`
}

// GenerationResult is the canonical, provider-independent output of one generation call.
type GenerationResult struct {
	Mode       Mode           `json:"mode"`
	Payload    map[string]any `json:"payload"`
	Confidence float64        `json:"confidence"`
	Sources    []string       `json:"sources"`
	Warnings   []string       `json:"warnings"`
	Metadata   ResultMetadata `json:"metadata"`
}

// Text returns the first non-empty string payload field among keys.
func (r *GenerationResult) Text(keys ...string) string {
	if r == nil {
		return ""
	}
	for _, k := range keys {
		if s, ok := r.Payload[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

// Items returns the payload field key as a slice of objects, skipping non-object elements.
func (r *GenerationResult) Items(key string) []map[string]any {
	if r == nil {
		return nil
	}
	raw, ok := r.Payload[key].([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(raw))
	for _, item := range raw {
		if m, ok := item.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}
