package httpx

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	apperrors "github.com/medforge/contentgen/internal/errors"
)

// validationResponse is the 400 body: a message per offending field.
type validationResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields"`
}

// internalResponse hides the cause behind an id that is logged with the full error.
type internalResponse struct {
	Error   string `json:"error"`
	ErrorID string `json:"error_id"`
}

// WriteValidation writes a 400 with the given field messages.
func WriteValidation(w http.ResponseWriter, fields map[string]string) {
	WriteJSON(w, http.StatusBadRequest, validationResponse{Error: "validation_failed", Fields: fields})
}

// WriteServiceError maps a service error to a response. Validation errors become 400 with
// a field map; anything else is logged under a fresh error id and reported as an opaque 500.
func WriteServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	if apperrors.IsValidation(err) {
		field := apperrors.GetField(err)
		if field == "" {
			field = "request"
		}
		msg := err.Error()
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			msg = appErr.Message
		}
		WriteValidation(w, map[string]string{field: msg})
		return
	}

	id := uuid.NewString()
	if logger != nil {
		logger.ErrorContext(r.Context(), "request failed",
			"error_id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	WriteJSON(w, http.StatusInternalServerError, internalResponse{Error: "internal_error", ErrorID: id})
}
