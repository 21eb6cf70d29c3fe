package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/domain/mode"
	"github.com/medforge/contentgen/internal/domain/model"
	apperrors "github.com/medforge/contentgen/internal/errors"
	"github.com/medforge/contentgen/internal/observability/metrics"
	"github.com/medforge/contentgen/internal/observability/statsd"
)

// Skip reasons recorded for modes that need full text when none exists.
const (
	SkipReasonNoFullText    = "full text unavailable: topic has none and fulltext was not requested"
	SkipReasonFullTextEmpty = "full text unavailable: fulltext stage produced no text"
)

const maxOutcomeErrorLen = 500

// PipelineStores groups the external stores the pipeline writes to.
type PipelineStores struct {
	Topics     core.TopicRepository     // Required
	Flashcards core.FlashcardRepository // Required
	Questions  core.QuestionRepository  // Required
}

// PipelineServiceOptions groups dependencies for PipelineService.
type PipelineServiceOptions struct {
	Stores  PipelineStores
	Catalog *mode.Catalog // Required: mode table used for planning
	Router  *ModelRouter  // Required: provider routing
	Cache   *CacheService // Optional: lookaside cache; nil disables caching
	Logger  *slog.Logger  // Optional: structured logger
	Metrics statsd.Sink   // Optional: metrics sink
}

// PipelineService runs the staged generation plan for a topic.
type PipelineService struct {
	stores  PipelineStores
	catalog *mode.Catalog
	router  *ModelRouter
	cache   *CacheService
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewPipelineService constructs a PipelineService.
func NewPipelineService(opts PipelineServiceOptions) (*PipelineService, error) {
	switch {
	case opts.Stores.Topics == nil:
		return nil, errors.New("TopicRepository is required")
	case opts.Stores.Flashcards == nil:
		return nil, errors.New("FlashcardRepository is required")
	case opts.Stores.Questions == nil:
		return nil, errors.New("QuestionRepository is required")
	case opts.Catalog == nil:
		return nil, errors.New("mode catalog is required")
	case opts.Router == nil:
		return nil, errors.New("ModelRouter is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PipelineService{
		stores:  opts.Stores,
		catalog: opts.Catalog,
		router:  opts.Router,
		cache:   opts.Cache,
		logger:  logger.With("component", "pipeline"),
		metrics: opts.Metrics,
	}, nil
}

var _ core.PipelineRunner = (*PipelineService)(nil)

// persistError marks a store failure so the caller can keep running later modes.
type persistError struct {
	mode  model.Mode
	store string
	err   error
}

func (e *persistError) Error() string {
	return fmt.Sprintf("persist %s (%s): %v", e.mode, e.store, e.err)
}

func (e *persistError) Unwrap() error { return e.err }

// Run executes modes for topicID in dependency order and returns the per-mode outcomes.
//
// A provider or routing error aborts the remaining modes and is returned. Persistence
// errors and empty outputs fail only their own mode; the remaining modes still run and
// the joined mode errors are returned at the end. Skipped modes are not errors.
func (s *PipelineService) Run(ctx context.Context, topicID string, modes []model.Mode) (model.JobResult, error) {
	topic, err := s.stores.Topics.GetByID(ctx, topicID)
	if err != nil {
		return model.JobResult{}, fmt.Errorf("load topic: %w", err)
	}
	plan, err := s.catalog.Plan(modes)
	if err != nil {
		return model.JobResult{}, apperrors.ValidationField("modes", err.Error())
	}

	gc := topic.Context()
	skipReason := SkipReasonNoFullText
	if slices.Contains(plan, model.ModeFullText) {
		skipReason = SkipReasonFullTextEmpty
	}
	result := make(model.JobResult, len(plan))
	var modeErrs []error

	for _, m := range plan {
		cfg, err := s.catalog.Get(m)
		if err != nil {
			return result, err
		}

		if cfg.DependsOnFullText && strings.TrimSpace(gc.FullText) == "" {
			result[m] = model.ModeOutcome{Status: model.OutcomeSkipped, Reason: skipReason}
			metrics.EmitModeOutcome(s.metrics, string(m), string(model.OutcomeSkipped), false)
			s.logger.InfoContext(ctx, "mode skipped", "topic_id", topicID, "mode", m, "reason", skipReason)
			continue
		}

		res, err := s.generate(ctx, m, gc)
		if err != nil {
			result[m] = failedOutcome(err)
			metrics.EmitModeOutcome(s.metrics, string(m), string(model.OutcomeFailed), false)
			return result, err
		}

		items, err := s.persist(ctx, topic, cfg, res)
		if m == model.ModeFullText {
			// later stages read what was just produced even when the write-back failed
			if text := res.Text(cfg.PayloadKey, "text"); text != "" {
				gc.FullText = text
			}
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "mode failed", "topic_id", topicID, "mode", m, "error", err)
			outcome := failedOutcome(err)
			outcome.CacheHit = res.Metadata.CacheHit
			outcome.Model = res.Metadata.Model
			outcome.Cost = res.Metadata.Cost.TotalCost
			result[m] = outcome
			modeErrs = append(modeErrs, err)
			metrics.EmitModeOutcome(s.metrics, string(m), string(model.OutcomeFailed), res.Metadata.CacheHit)
			continue
		}

		result[m] = model.ModeOutcome{
			Status:   model.OutcomeSucceeded,
			CacheHit: res.Metadata.CacheHit,
			Model:    res.Metadata.Model,
			Cost:     res.Metadata.Cost.TotalCost,
			Items:    items,
		}
		metrics.EmitModeOutcome(s.metrics, string(m), string(model.OutcomeSucceeded), res.Metadata.CacheHit)
	}

	return result, errors.Join(modeErrs...)
}

// Generate is the cache-first single-mode path. Nothing is persisted.
func (s *PipelineService) Generate(
	ctx context.Context,
	m model.Mode,
	gc model.GenerationContext,
) (*model.GenerationResult, error) {
	cfg, err := s.catalog.Get(m)
	if err != nil {
		return nil, apperrors.ValidationField("mode", err.Error())
	}
	if cfg.DependsOnFullText && strings.TrimSpace(gc.FullText) == "" {
		return nil, apperrors.ValidationField("context.full_text", fmt.Sprintf("mode %q requires full_text", m))
	}
	return s.generate(ctx, m, gc)
}

func (s *PipelineService) generate(
	ctx context.Context,
	m model.Mode,
	gc model.GenerationContext,
) (*model.GenerationResult, error) {
	route, err := s.router.Route(m)
	if err != nil {
		return nil, err
	}
	if !route.Config.DependsOnFullText {
		// producers never read full text, so it must not split their cache key
		gc.FullText = ""
	}

	if s.cache != nil {
		if res, ok := s.cache.Lookup(ctx, m, route.Model, gc); ok {
			return res, nil
		}
	}

	res, err := s.router.GenerateRoute(ctx, route, gc)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Store(ctx, route.Model, gc, res)
	}
	return res, nil
}

func (s *PipelineService) persist(
	ctx context.Context,
	topic *model.Topic,
	cfg mode.Config,
	res *model.GenerationResult,
) (int, error) {
	switch cfg.Mode {
	case model.ModeFullText:
		return s.persistFullText(ctx, topic, cfg, res)
	case model.ModeHighYield:
		text := res.Text(cfg.PayloadKey, "summary", "text")
		if text == "" {
			return 0, &persistError{mode: cfg.Mode, store: "provider", err: errors.New("response has no summary text")}
		}
		if err := s.stores.Topics.UpdateHighYield(ctx, topic.ID, text); err != nil {
			return 0, &persistError{mode: cfg.Mode, store: "topics", err: err}
		}
		return 1, nil
	case model.ModeFlashcards:
		cards := flashcardsFrom(topic.ID, res.Items(cfg.PayloadKey))
		if len(cards) == 0 {
			return 0, &persistError{mode: cfg.Mode, store: "provider", err: errors.New("response has no flashcards")}
		}
		n, err := s.stores.Flashcards.BulkInsert(ctx, cards)
		if err != nil {
			return 0, &persistError{mode: cfg.Mode, store: "flashcards", err: err}
		}
		return n, nil
	case model.ModeQuestions:
		questions, err := questionsFrom(topic.ID, res.Items(cfg.PayloadKey))
		if err != nil {
			return 0, &persistError{mode: cfg.Mode, store: "provider", err: err}
		}
		if len(questions) == 0 {
			return 0, &persistError{mode: cfg.Mode, store: "provider", err: errors.New("response has no questions")}
		}
		n, err := s.stores.Questions.BulkInsert(ctx, questions)
		if err != nil {
			return 0, &persistError{mode: cfg.Mode, store: "questions", err: err}
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %q", mode.ErrUnknownMode, cfg.Mode)
	}
}

func (s *PipelineService) persistFullText(
	ctx context.Context,
	topic *model.Topic,
	cfg mode.Config,
	res *model.GenerationResult,
) (int, error) {
	text := res.Text(cfg.PayloadKey, "text")
	if text == "" {
		return 0, &persistError{mode: cfg.Mode, store: "provider", err: errors.New("response has no full text")}
	}
	status := model.TopicGenerationGenerated
	if res.Metadata.CacheHit {
		status = model.TopicGenerationCached
	}
	err := s.stores.Topics.UpdateFullText(ctx, model.TopicFullTextUpdate{
		TopicID:    topic.ID,
		FullText:   text,
		Confidence: res.Confidence,
		Cost:       res.Metadata.Cost.TotalCost,
		Model:      res.Metadata.Model,
		Sources:    res.Sources,
		Warnings:   res.Warnings,
		Status:     status,
	})
	if err != nil {
		return 0, &persistError{mode: cfg.Mode, store: "topics", err: err}
	}
	return 1, nil
}

func failedOutcome(err error) model.ModeOutcome {
	msg := err.Error()
	if len(msg) > maxOutcomeErrorLen {
		msg = msg[:maxOutcomeErrorLen] + "..."
	}
	return model.ModeOutcome{Status: model.OutcomeFailed, Error: msg}
}

func flashcardsFrom(topicID string, items []map[string]any) []model.Flashcard {
	cards := make([]model.Flashcard, 0, len(items))
	for _, item := range items {
		front := firstString(item, "front", "question")
		back := firstString(item, "back", "answer")
		if front == "" || back == "" {
			continue
		}
		card := model.Flashcard{
			TopicID:    topicID,
			Front:      front,
			Back:       back,
			Difficulty: firstString(item, "difficulty"),
			Tags:       stringList(item["tags"]),
			Confidence: model.DefaultFlashcardConfidence,
		}
		if card.Difficulty == "" {
			card.Difficulty = model.DefaultFlashcardDifficulty
		}
		if c, ok := item["confidence"].(float64); ok {
			card.Confidence = confidenceOf(c)
		}
		cards = append(cards, card)
	}
	return cards
}

type questionPayload struct {
	Options     any    `json:"options"`
	Answer      any    `json:"answer"`
	Explanation string `json:"explanation,omitempty"`
}

func questionsFrom(topicID string, items []map[string]any) ([]model.Question, error) {
	out := make([]model.Question, 0, len(items))
	for _, item := range items {
		stem := firstString(item, "stem", "question")
		if stem == "" {
			continue
		}
		answer := item["answer"]
		if answer == nil {
			answer = item["correct_answer"]
		}
		payload, err := json.Marshal(questionPayload{
			Options:     item["options"],
			Answer:      answer,
			Explanation: firstString(item, "explanation"),
		})
		if err != nil {
			return nil, fmt.Errorf("encode question payload: %w", err)
		}
		difficulty := firstString(item, "difficulty")
		if difficulty == "" {
			difficulty = model.DefaultFlashcardDifficulty
		}
		out = append(out, model.Question{
			TopicID:    topicID,
			Stem:       stem,
			Payload:    payload,
			Difficulty: difficulty,
		})
	}
	return out, nil
}

func firstString(item map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := item[k].(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				return s
			}
		}
	}
	return ""
}
