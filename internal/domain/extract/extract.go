// Package extract recovers structured payloads from free-form provider text.
//
// Parsing never fails: text that is not JSON is returned wrapped as {"text": raw}
// with Structured=false, so callers must branch on the tag.
package extract

import (
	"encoding/json"
	"strings"
)

// Tier records which extraction strategy produced the payload.
type Tier string

const (
	// TierStrict means the fence-stripped text parsed as a JSON object.
	TierStrict Tier = "strict"
	// TierBraces means the substring between the first '{' and last '}' parsed.
	TierBraces Tier = "braces"
	// TierRaw means nothing parsed and the text was wrapped.
	TierRaw Tier = "raw"
)

// RawTextKey is the payload key used for the unstructured fallback.
const RawTextKey = "text"

// Result is the tagged outcome of Parse.
type Result struct {
	Payload    map[string]any
	Structured bool
	Tier       Tier
}

// Parse runs the three extraction tiers over text and normalizes escaped
// newline and tab literals inside every string value.
func Parse(text string) Result {
	stripped := StripFences(text)

	if payload, ok := decodeObject(stripped); ok {
		return Result{Payload: normalizeMap(payload), Structured: true, Tier: TierStrict}
	}

	if start, end := strings.IndexByte(stripped, '{'), strings.LastIndexByte(stripped, '}'); start >= 0 && end > start {
		if payload, ok := decodeObject(stripped[start : end+1]); ok {
			return Result{Payload: normalizeMap(payload), Structured: true, Tier: TierBraces}
		}
	}

	return Result{
		Payload:    map[string]any{RawTextKey: NormalizeEscapes(strings.TrimSpace(text))},
		Structured: false,
		Tier:       TierRaw,
	}
}

// StripFences removes a leading ``` or ```json marker line and a trailing ``` marker.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if nl := strings.IndexByte(s, '\n'); nl >= 0 {
			// the remainder of the opening line is a language tag
			if tag := strings.TrimSpace(s[:nl]); !strings.ContainsAny(tag, "{[") {
				s = s[nl+1:]
			}
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

var escapeReplacer = strings.NewReplacer(`\r\n`, "\n", `\n`, "\n", `\t`, "\t")

// NormalizeEscapes rewrites literal backslash-n and backslash-t sequences into real
// newlines and tabs. Maps and slices are walked recursively; other values pass through.
func NormalizeEscapes(v any) any {
	switch val := v.(type) {
	case string:
		return escapeReplacer.Replace(val)
	case map[string]any:
		return normalizeMap(val)
	case []any:
		for i := range val {
			val[i] = NormalizeEscapes(val[i])
		}
		return val
	default:
		return v
	}
}

func normalizeMap(m map[string]any) map[string]any {
	for k, v := range m {
		m[k] = NormalizeEscapes(v)
	}
	return m
}

func decodeObject(s string) (map[string]any, bool) {
	if s == "" || s[0] != '{' {
		return nil, false
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil || out == nil {
		return nil, false
	}
	return out, true
}
