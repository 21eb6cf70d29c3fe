package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/domain/model"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
)

var anthropicShape = responseShape{
	Fragments:    "content[?type=='text'].text",
	InputTokens:  "usage.input_tokens",
	OutputTokens: "usage.output_tokens",
	Model:        "model",
}

// Anthropic calls the messages API.
type Anthropic struct {
	apiKey  string
	baseURL string
	t       *transport
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
}

// NewAnthropic creates an Anthropic adapter.
func NewAnthropic(opts ClientOptions) *Anthropic {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultAnthropicURL
	}
	return &Anthropic{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: base,
		t:       newTransport(model.ProviderAnthropic, opts),
	}
}

// Kind returns model.ProviderAnthropic.
func (a *Anthropic) Kind() model.ProviderKind { return model.ProviderAnthropic }

// Configured reports whether an API key is set.
func (a *Anthropic) Configured() bool { return a.apiKey != "" }

// Complete sends one messages request.
func (a *Anthropic) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	if !a.Configured() {
		return nil, fmt.Errorf("%s: %w", model.ProviderAnthropic, core.ErrMissingCredential)
	}

	headers := http.Header{}
	headers.Set("x-api-key", a.apiKey)
	headers.Set("anthropic-version", anthropicVersion)

	doc, err := a.t.postJSON(ctx, a.baseURL+"/v1/messages", headers, anthropicRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		System:      req.SystemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: req.UserPrompt}},
	})
	if err != nil {
		return nil, err
	}
	return buildResponse(model.ProviderAnthropic, req.Model, anthropicShape, doc)
}

func buildResponse(kind model.ProviderKind, requested string, shape responseShape, doc any) (*core.CompletionResponse, error) {
	fragments, usage, name, err := shape.extract(doc)
	if err != nil {
		return nil, fmt.Errorf("%s: normalize response: %w", kind, err)
	}
	if !hasText(fragments) {
		return nil, fmt.Errorf("%s: %w", kind, ErrEmptyCompletion)
	}
	if name == "" {
		name = requested
	}
	return &core.CompletionResponse{
		Provider:  kind,
		Model:     name,
		Fragments: fragments,
		Usage:     usage,
	}, nil
}
