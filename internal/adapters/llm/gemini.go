package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/domain/model"
)

const defaultGeminiURL = "https://generativelanguage.googleapis.com"

// The REST API answers in camelCase; some proxies re-emit snake_case.
var geminiShape = responseShape{
	Fragments:    "candidates[0].content.parts[].text",
	InputTokens:  "usageMetadata.promptTokenCount || usage_metadata.prompt_token_count",
	OutputTokens: "usageMetadata.candidatesTokenCount || usage_metadata.candidates_token_count",
	Model:        "modelVersion || model_version",
}

// Gemini calls the generateContent API.
type Gemini struct {
	apiKey  string
	baseURL string
	t       *transport
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"max_output_tokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent         `json:"system_instruction,omitempty"`
	Contents          []geminiContent        `json:"contents"`
	GenerationConfig  geminiGenerationConfig `json:"generation_config"`
}

// NewGemini creates a Gemini adapter.
func NewGemini(opts ClientOptions) *Gemini {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultGeminiURL
	}
	return &Gemini{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: base,
		t:       newTransport(model.ProviderGemini, opts),
	}
}

// Kind returns model.ProviderGemini.
func (g *Gemini) Kind() model.ProviderKind { return model.ProviderGemini }

// Configured reports whether an API key is set.
func (g *Gemini) Configured() bool { return g.apiKey != "" }

// Complete sends one generateContent request.
func (g *Gemini) Complete(ctx context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
	if !g.Configured() {
		return nil, fmt.Errorf("%s: %w", model.ProviderGemini, core.ErrMissingCredential)
	}

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: []geminiPart{{Text: req.UserPrompt}}}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if strings.TrimSpace(req.SystemPrompt) != "" {
		body.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.SystemPrompt}}}
	}

	headers := http.Header{}
	headers.Set("x-goog-api-key", g.apiKey)

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, url.PathEscape(req.Model))
	doc, err := g.t.postJSON(ctx, endpoint, headers, body)
	if err != nil {
		return nil, err
	}
	return buildResponse(model.ProviderGemini, req.Model, geminiShape, doc)
}
