// Package httpx provides the JSON API for the content generation pipeline.
package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/http/validation"
)

// Batch actions accepted by POST /batch.
const (
	ActionEnqueue = "enqueue"
	ActionProcess = "process"
	ActionStatus  = "status"
)

// BatchQueue is the queue surface behind POST /batch.
type BatchQueue interface {
	Enqueue(ctx context.Context, req model.EnqueueRequest) ([]*model.GenerationJob, error)
	Drain(ctx context.Context, limit int) ([]model.DrainResult, error)
	Status(ctx context.Context) (*model.QueueStatus, error)
}

// BatchHandlers serves POST /batch.
type BatchHandlers struct {
	Queue          BatchQueue
	IdentityHeader string
	Logger         *slog.Logger
}

type batchRequest struct {
	Action       string   `json:"action"`
	TopicIDs     []string `json:"topic_ids,omitempty"`
	Modes        []string `json:"modes,omitempty"`
	PriorityBase int      `json:"priority_base,omitempty"`
	Limit        int      `json:"limit,omitempty"`
}

type enqueueResponse struct {
	Queued int                    `json:"queued"`
	Items  []*model.GenerationJob `json:"items"`
}

type processResponse struct {
	Processed int                 `json:"processed"`
	Results   []model.DrainResult `json:"results"`
}

// Batch dispatches on the request's action.
func (h *BatchHandlers) Batch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	actions := []string{ActionEnqueue, ActionProcess, ActionStatus}
	if fv := validation.New().Validate("action", req.Action, validation.OneOf("Action", actions)); !fv.Valid() {
		WriteValidation(w, fv.Errors())
		return
	}

	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case ActionEnqueue:
		h.enqueue(w, r, req)
	case ActionProcess:
		h.process(w, r, req)
	case ActionStatus:
		h.status(w, r)
	}
}

func (h *BatchHandlers) enqueue(w http.ResponseWriter, r *http.Request, req batchRequest) {
	fv := validation.New().ValidateEach("modes", req.Modes, validation.OneOf("Mode", model.ModeNames()))
	if !fv.Valid() {
		WriteValidation(w, fv.Errors())
		return
	}
	modes, err := model.ParseModes(req.Modes)
	if err != nil {
		WriteValidation(w, map[string]string{"modes": err.Error()})
		return
	}

	jobs, err := h.Queue.Enqueue(r.Context(), model.EnqueueRequest{
		TopicIDs:     req.TopicIDs,
		Modes:        modes,
		PriorityBase: req.PriorityBase,
		SubmittedBy:  Identity(r, h.IdentityHeader),
	})
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, enqueueResponse{Queued: len(jobs), Items: jobs})
}

func (h *BatchHandlers) process(w http.ResponseWriter, r *http.Request, req batchRequest) {
	results, err := h.Queue.Drain(r.Context(), req.Limit)
	if err != nil && len(results) == 0 {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	if err != nil && h.Logger != nil {
		// jobs already processed are still reported
		h.Logger.WarnContext(r.Context(), "drain ended early", "error", err, "processed", len(results))
	}
	if results == nil {
		results = []model.DrainResult{}
	}
	WriteJSON(w, http.StatusOK, processResponse{Processed: len(results), Results: results})
}

func (h *BatchHandlers) status(w http.ResponseWriter, r *http.Request) {
	status, err := h.Queue.Status(r.Context())
	if err != nil {
		WriteServiceError(w, r, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, status)
}
