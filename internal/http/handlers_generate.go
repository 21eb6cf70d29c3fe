package httpx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/http/validation"
)

// Context field bounds for POST /generate.
const (
	maxLabelLen    = 200
	maxFullTextLen = 200_000
)

// Generator produces a single-mode result without persisting it.
type Generator interface {
	Generate(ctx context.Context, mode model.Mode, gc model.GenerationContext) (*model.GenerationResult, error)
}

// GenerateHandlers serves POST /generate.
type GenerateHandlers struct {
	Generator Generator
	Logger    *slog.Logger
}

// generateRequest keeps mode as a string so unknown values surface as field errors.
type generateRequest struct {
	Mode    string                  `json:"mode"`
	Context model.GenerationContext `json:"context"`
}

// Generate validates the request and returns the canonical GenerationResult.
func (h *GenerateHandlers) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	fv := validateGenerate(req)
	if !fv.Valid() {
		WriteValidation(w, fv.Errors())
		return
	}
	var m model.Mode
	if err := m.UnmarshalText([]byte(req.Mode)); err != nil {
		WriteValidation(w, map[string]string{"mode": err.Error()})
		return
	}

	res, err := h.Generator.Generate(r.Context(), m, req.Context)
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, res)
}

func validateGenerate(req generateRequest) *validation.FieldValidator {
	gc := req.Context
	return validation.New().
		Validate("mode", req.Mode, validation.OneOf("Mode", model.ModeNames())).
		Validate("context.specialty", gc.Specialty, validation.Required("Specialty", maxLabelLen)).
		Validate("context.parent_grouping", gc.ParentGrouping, validation.Required("Parent grouping", maxLabelLen)).
		Validate("context.title", gc.Title, validation.Required("Title", maxLabelLen)).
		Validate("context.full_text", gc.FullText, validation.Optional("Full text", maxFullTextLen))
}
