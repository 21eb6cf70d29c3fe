package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/domain/model"
	apperrors "github.com/medforge/contentgen/internal/errors"
)

func newGenerateRouter(g *fakeGenerator) http.Handler {
	return NewRouter(RouterServices{Queue: &fakeQueue{}, Generator: g, Config: testHTTPConfig()})
}

func TestGenerate_Success(t *testing.T) {
	g := &fakeGenerator{res: &model.GenerationResult{
		Mode:       model.ModeHighYield,
		Payload:    map[string]any{"high_yield": "- point"},
		Confidence: 0.7,
		Sources:    []string{},
		Warnings:   []string{},
		Metadata: model.ResultMetadata{
			Provider: model.ProviderAnthropic,
			Model:    "claude-3-5-haiku-20241022",
			CacheHit: true,
		},
	}}

	rec := postJSON(t, newGenerateRouter(g), "/generate", `{
		"mode": "high_yield",
		"context": {"specialty": "Medicine", "parent_grouping": "Respiratory", "title": "Asthma", "full_text": "Chapter."}
	}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.ModeHighYield, g.gotMode)
	assert.Equal(t, model.GenerationContext{
		Specialty: "Medicine", ParentGrouping: "Respiratory", Title: "Asthma", FullText: "Chapter.",
	}, g.gotCtx)

	body := decodeBody(t, rec)
	assert.Equal(t, "high_yield", body["mode"])
	meta := body["metadata"].(map[string]any)
	assert.Equal(t, true, meta["cache_hit"])
}

func TestGenerate_SchemaValidation(t *testing.T) {
	long := strings.Repeat("a", 201)
	tests := []struct {
		name       string
		body       string
		wantFields []string
	}{
		{
			name:       "unknown mode",
			body:       `{"mode":"essay","context":{"specialty":"M","parent_grouping":"R","title":"A"}}`,
			wantFields: []string{"mode"},
		},
		{
			name:       "missing fields",
			body:       `{"mode":"fulltext","context":{"specialty":" "}}`,
			wantFields: []string{"context.specialty", "context.parent_grouping", "context.title"},
		},
		{
			name:       "blank mode",
			body:       `{"mode":"","context":{"specialty":"M","parent_grouping":"R","title":"A"}}`,
			wantFields: []string{"mode"},
		},
		{
			name:       "full text too long",
			body:       fmt.Sprintf(`{"mode":"flashcards","context":{"specialty":"M","parent_grouping":"R","title":"A","full_text":%q}}`, strings.Repeat("b", 200_001)),
			wantFields: []string{"context.full_text"},
		},
		{
			name:       "title too long",
			body:       fmt.Sprintf(`{"mode":"fulltext","context":{"specialty":"M","parent_grouping":"R","title":%q}}`, long),
			wantFields: []string{"context.title"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := &fakeGenerator{}
			rec := postJSON(t, newGenerateRouter(g), "/generate", tt.body, nil)

			require.Equal(t, http.StatusBadRequest, rec.Code)
			body := decodeBody(t, rec)
			assert.Equal(t, "validation_failed", body["error"])
			fields, ok := body["fields"].(map[string]any)
			require.True(t, ok, rec.Body.String())
			for _, f := range tt.wantFields {
				assert.Contains(t, fields, f)
			}
			assert.Len(t, fields, len(tt.wantFields))
			assert.Zero(t, g.calls)
		})
	}
}

func TestGenerate_ModeIsNormalized(t *testing.T) {
	g := &fakeGenerator{res: &model.GenerationResult{Mode: model.ModeFullText}}

	rec := postJSON(t, newGenerateRouter(g), "/generate",
		`{"mode":" FullText ","context":{"specialty":"M","parent_grouping":"R","title":"A"}}`, nil)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, model.ModeFullText, g.gotMode)
}

func TestGenerate_ServiceValidation(t *testing.T) {
	g := &fakeGenerator{err: apperrors.ValidationField("context.full_text", `mode "flashcards" requires full_text`)}

	rec := postJSON(t, newGenerateRouter(g), "/generate",
		`{"mode":"flashcards","context":{"specialty":"M","parent_grouping":"R","title":"A"}}`, nil)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, map[string]any{"context.full_text": `mode "flashcards" requires full_text`},
		decodeBody(t, rec)["fields"])
}

func TestGenerate_InternalError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "missing credential", err: fmt.Errorf("route fulltext via anthropic: %w", core.ErrMissingCredential)},
		{name: "provider failure", err: errors.New("generate fulltext: anthropic returned status 500: stack trace here")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := postJSON(t, newGenerateRouter(&fakeGenerator{err: tt.err}), "/generate",
				`{"mode":"fulltext","context":{"specialty":"M","parent_grouping":"R","title":"A"}}`, nil)

			require.Equal(t, http.StatusInternalServerError, rec.Code)
			body := decodeBody(t, rec)
			assert.Len(t, body, 2)
			assert.Regexp(t, `^[0-9a-f-]{36}$`, body["error_id"])
			assert.NotContains(t, rec.Body.String(), "stack trace")
		})
	}
}
