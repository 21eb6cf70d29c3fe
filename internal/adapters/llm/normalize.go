package llm

import (
	"errors"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"

	"github.com/medforge/contentgen/internal/domain/model"
)

// ErrEmptyCompletion is returned when a provider response carries no text fragments.
var ErrEmptyCompletion = errors.New("provider returned no text content")

// responseShape names where a provider puts its text and token counts.
type responseShape struct {
	Fragments    string
	InputTokens  string
	OutputTokens string
	Model        string
}

// extract pulls fragments, usage and model out of a decoded provider response.
func (s responseShape) extract(doc any) ([]string, model.TokenUsage, string, error) {
	raw, err := jmespath.Search(s.Fragments, doc)
	if err != nil {
		return nil, model.TokenUsage{}, "", fmt.Errorf("search %q: %w", s.Fragments, err)
	}
	fragments := stringsOf(raw)

	usage := model.TokenUsage{
		InputTokens:  intAt(s.InputTokens, doc),
		OutputTokens: intAt(s.OutputTokens, doc),
	}

	var name string
	if s.Model != "" {
		if v, err := jmespath.Search(s.Model, doc); err == nil {
			name, _ = v.(string)
		}
	}
	return fragments, usage, name, nil
}

func stringsOf(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case []any:
				out = append(out, stringsOf(s)...)
			}
		}
		return out
	default:
		return nil
	}
}

func intAt(expr string, doc any) int {
	if expr == "" {
		return 0
	}
	v, err := jmespath.Search(expr, doc)
	if err != nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func hasText(fragments []string) bool {
	for _, f := range fragments {
		if strings.TrimSpace(f) != "" {
			return true
		}
	}
	return false
}
