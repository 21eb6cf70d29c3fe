package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/medforge/contentgen/internal/adapters/llm"
	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/domain/mode"
	"github.com/medforge/contentgen/internal/domain/model"
	apperrors "github.com/medforge/contentgen/internal/errors"
)

const (
	sonnet = "claude-sonnet-4-20250514"
	haiku  = "claude-3-5-haiku-20241022"
	flash  = "gemini-2.0-flash"
)

const (
	fullTextJSON  = `{"full_text":"Asthma is chronic airway inflammation.\\nIt is reversible.","confidence":0.9,"sources":["BTS 2024"],"warnings":[]}`
	highYieldJSON = "```json\n{\"high_yield\":\"- Reversible obstruction\",\"confidence\":0.8}\n```"
	flashcardJSON = `{"flashcards":[{"front":"Q1","back":"A1"},{"front":"Q2","back":"A2","difficulty":"hard","tags":["airways"],"confidence":0.6},{"front":"","back":"dropped"}]}`
	questionsJSON = `Here you go: {"questions":[{"stem":"First line?","options":["SABA","LABA"],"answer":"SABA","explanation":"Reliever"}]} thanks`
)

type pipelineFixture struct {
	ps         providerSet
	topics     *fakeTopicRepo
	flashcards *fakeFlashcardRepo
	questions  *fakeQuestionRepo
	cache      *memCacheRepo
	svc        *PipelineService
}

func asthmaTopic() *model.Topic {
	return &model.Topic{ID: "t1", Title: "Asthma", ParentGroupingName: "Respiratory", Specialty: "Medicine"}
}

func newPipelineFixture(t *testing.T, anthropicKey, geminiKey bool, topics ...*model.Topic) *pipelineFixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	if len(topics) == 0 {
		topics = []*model.Topic{asthmaTopic()}
	}
	f := &pipelineFixture{
		ps:         newProviderSet(ctrl, anthropicKey, geminiKey),
		topics:     newFakeTopicRepo(topics...),
		flashcards: &fakeFlashcardRepo{},
		questions:  &fakeQuestionRepo{},
		cache:      newMemCacheRepo(),
	}
	cache, err := NewCacheService(CacheServiceOptions{Repo: f.cache, Now: func() time.Time { return testNow }})
	require.NoError(t, err)
	svc, err := NewPipelineService(PipelineServiceOptions{
		Stores:  PipelineStores{Topics: f.topics, Flashcards: f.flashcards, Questions: f.questions},
		Catalog: mode.MustLoadDefault(),
		Router:  newTestRouter(t, f.ps),
		Cache:   cache,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func TestNewPipelineService_RequiresDependencies(t *testing.T) {
	_, err := NewPipelineService(PipelineServiceOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TopicRepository is required")
}

func TestPipelineService_Run_FullTextRunsBeforeDependents(t *testing.T) {
	f := newPipelineFixture(t, true, true)

	gomock.InOrder(
		f.ps.anthropic.EXPECT().Complete(gomock.Any(), forMode(model.ModeFullText)).
			Return(completion(model.ProviderAnthropic, sonnet, fullTextJSON), nil),
		f.ps.gemini.EXPECT().Complete(gomock.Any(), forMode(model.ModeFlashcards)).
			DoAndReturn(func(_ context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
				assert.Contains(t, req.UserPrompt, "Asthma is chronic airway inflammation.\nIt is reversible.")
				assert.Equal(t, flash, req.Model)
				return completion(model.ProviderGemini, flash, flashcardJSON), nil
			}),
	)

	result, err := f.svc.Run(context.Background(), "t1", []model.Mode{model.ModeFlashcards, model.ModeFullText})
	require.NoError(t, err)

	require.Contains(t, result, model.ModeFullText)
	require.Contains(t, result, model.ModeFlashcards)
	assert.Equal(t, model.OutcomeSucceeded, result[model.ModeFullText].Status)
	assert.Equal(t, model.OutcomeSucceeded, result[model.ModeFlashcards].Status)
	assert.Equal(t, 2, result[model.ModeFlashcards].Items)
	assert.InDelta(t, 0.033, result[model.ModeFullText].Cost, 1e-9)

	require.Len(t, f.topics.fullText, 1)
	update := f.topics.fullText[0]
	assert.Equal(t, "Asthma is chronic airway inflammation.\nIt is reversible.", update.FullText)
	assert.Equal(t, []string{"BTS 2024"}, update.Sources)
	assert.InDelta(t, 0.9, update.Confidence, 1e-9)
	assert.Equal(t, model.TopicGenerationGenerated, update.Status)

	require.Len(t, f.flashcards.cards, 2)
	assert.Equal(t, model.Flashcard{
		TopicID: "t1", Front: "Q1", Back: "A1",
		Difficulty: model.DefaultFlashcardDifficulty,
		Tags:       []string{},
		Confidence: model.DefaultFlashcardConfidence,
	}, f.flashcards.cards[0])
	assert.Equal(t, "hard", f.flashcards.cards[1].Difficulty)
	assert.Equal(t, []string{"airways"}, f.flashcards.cards[1].Tags)
	assert.InDelta(t, 0.6, f.flashcards.cards[1].Confidence, 1e-9)
}

func TestPipelineService_Run_SkipsDependentsWithoutFullText(t *testing.T) {
	f := newPipelineFixture(t, true, true)

	result, err := f.svc.Run(context.Background(), "t1", []model.Mode{model.ModeFlashcards})
	require.NoError(t, err)

	outcome := result[model.ModeFlashcards]
	assert.Equal(t, model.OutcomeSkipped, outcome.Status)
	assert.Equal(t, SkipReasonNoFullText, outcome.Reason)
	assert.Empty(t, f.flashcards.cards)
}

func TestPipelineService_Run_EmptyFullTextSkipsDependentsWithOwnReason(t *testing.T) {
	f := newPipelineFixture(t, true, true)

	f.ps.anthropic.EXPECT().Complete(gomock.Any(), forMode(model.ModeFullText)).
		Return(completion(model.ProviderAnthropic, sonnet, `{"full_text":"","confidence":0.4}`), nil)

	result, err := f.svc.Run(context.Background(), "t1", []model.Mode{model.ModeFullText, model.ModeFlashcards})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "response has no full text")

	assert.Equal(t, model.OutcomeFailed, result[model.ModeFullText].Status)
	outcome := result[model.ModeFlashcards]
	assert.Equal(t, model.OutcomeSkipped, outcome.Status)
	assert.Equal(t, SkipReasonFullTextEmpty, outcome.Reason)
	assert.Empty(t, f.topics.fullText)
	assert.Empty(t, f.flashcards.cards)
}

func TestPipelineService_Run_UsesExistingFullText(t *testing.T) {
	topic := asthmaTopic()
	topic.FullText = "Existing chapter text."
	f := newPipelineFixture(t, true, true, topic)

	f.ps.anthropic.EXPECT().Complete(gomock.Any(), forMode(model.ModeHighYield)).
		DoAndReturn(func(_ context.Context, req core.CompletionRequest) (*core.CompletionResponse, error) {
			assert.Contains(t, req.UserPrompt, "Existing chapter text.")
			assert.Equal(t, haiku, req.Model)
			return completion(model.ProviderAnthropic, haiku, highYieldJSON), nil
		})

	result, err := f.svc.Run(context.Background(), "t1", []model.Mode{model.ModeHighYield})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSucceeded, result[model.ModeHighYield].Status)
	assert.Equal(t, "- Reversible obstruction", f.topics.highYield["t1"])
}

func TestPipelineService_Run_EndToEndThenCached(t *testing.T) {
	f := newPipelineFixture(t, true, true)
	modes := []model.Mode{model.ModeFullText, model.ModeHighYield, model.ModeFlashcards}

	f.ps.anthropic.EXPECT().Complete(gomock.Any(), forMode(model.ModeFullText)).
		Return(completion(model.ProviderAnthropic, sonnet, fullTextJSON), nil).Times(1)
	f.ps.anthropic.EXPECT().Complete(gomock.Any(), forMode(model.ModeHighYield)).
		Return(completion(model.ProviderAnthropic, haiku, highYieldJSON), nil).Times(1)
	f.ps.gemini.EXPECT().Complete(gomock.Any(), forMode(model.ModeFlashcards)).
		Return(completion(model.ProviderGemini, flash, flashcardJSON), nil).Times(1)

	first, err := f.svc.Run(context.Background(), "t1", modes)
	require.NoError(t, err)
	for _, m := range modes {
		assert.Equal(t, model.OutcomeSucceeded, first[m].Status, m)
		assert.False(t, first[m].CacheHit, m)
	}
	assert.Equal(t, 3, f.cache.upserts)

	second, err := f.svc.Run(context.Background(), "t1", modes)
	require.NoError(t, err)
	for _, m := range modes {
		assert.Equal(t, model.OutcomeSucceeded, second[m].Status, m)
		assert.True(t, second[m].CacheHit, m)
	}
	assert.Equal(t, 3, f.cache.upserts)
	require.Len(t, f.topics.fullText, 2)
	assert.Equal(t, model.TopicGenerationCached, f.topics.fullText[1].Status)
	assert.Len(t, f.flashcards.cards, 4)
}

func TestPipelineService_Run_ProviderErrorAbortsRemainingModes(t *testing.T) {
	f := newPipelineFixture(t, true, true)

	f.ps.anthropic.EXPECT().Complete(gomock.Any(), forMode(model.ModeFullText)).
		Return(completion(model.ProviderAnthropic, sonnet, fullTextJSON), nil)
	f.ps.anthropic.EXPECT().Complete(gomock.Any(), forMode(model.ModeHighYield)).
		Return(nil, &llm.HTTPError{Provider: model.ProviderAnthropic, StatusCode: 500, Body: "overloaded"})

	result, err := f.svc.Run(context.Background(), "t1",
		[]model.Mode{model.ModeFullText, model.ModeHighYield, model.ModeFlashcards})
	require.Error(t, err)

	var httpErr *llm.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, model.OutcomeSucceeded, result[model.ModeFullText].Status)
	assert.Equal(t, model.OutcomeFailed, result[model.ModeHighYield].Status)
	assert.Contains(t, result[model.ModeHighYield].Error, "overloaded")
	assert.NotContains(t, result, model.ModeFlashcards)
}

func TestPipelineService_Run_PersistenceErrorIsolatedToMode(t *testing.T) {
	f := newPipelineFixture(t, true, true)
	f.flashcards.err = errors.New("insert flashcards: connection reset")

	f.ps.anthropic.EXPECT().Complete(gomock.Any(), forMode(model.ModeFullText)).
		Return(completion(model.ProviderAnthropic, sonnet, fullTextJSON), nil)
	f.ps.gemini.EXPECT().Complete(gomock.Any(), forMode(model.ModeFlashcards)).
		Return(completion(model.ProviderGemini, flash, flashcardJSON), nil)
	f.ps.anthropic.EXPECT().Complete(gomock.Any(), forMode(model.ModeQuestions)).
		Return(completion(model.ProviderAnthropic, haiku, questionsJSON), nil)

	result, err := f.svc.Run(context.Background(), "t1",
		[]model.Mode{model.ModeFullText, model.ModeFlashcards, model.ModeQuestions})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist flashcards (flashcards)")

	assert.Equal(t, model.OutcomeFailed, result[model.ModeFlashcards].Status)
	assert.Contains(t, result[model.ModeFlashcards].Error, "connection reset")
	assert.Equal(t, model.OutcomeSucceeded, result[model.ModeQuestions].Status)

	require.Len(t, f.questions.questions, 1)
	q := f.questions.questions[0]
	assert.Equal(t, "First line?", q.Stem)
	assert.Equal(t, model.DefaultFlashcardDifficulty, q.Difficulty)
	var payload map[string]any
	require.NoError(t, json.Unmarshal(q.Payload, &payload))
	assert.Equal(t, "SABA", payload["answer"])
	assert.Equal(t, []any{"SABA", "LABA"}, payload["options"])
	assert.Equal(t, "Reliever", payload["explanation"])
}

func TestPipelineService_Run_UnstructuredFullText(t *testing.T) {
	f := newPipelineFixture(t, true, true)

	f.ps.anthropic.EXPECT().Complete(gomock.Any(), forMode(model.ModeFullText)).
		Return(completion(model.ProviderAnthropic, sonnet, "Plain prose about asthma."), nil)

	result, err := f.svc.Run(context.Background(), "t1", []model.Mode{model.ModeFullText})
	require.NoError(t, err)
	assert.Equal(t, model.OutcomeSucceeded, result[model.ModeFullText].Status)

	require.Len(t, f.topics.fullText, 1)
	assert.Equal(t, "Plain prose about asthma.", f.topics.fullText[0].FullText)
	assert.Contains(t, f.topics.fullText[0].Warnings, UnstructuredWarning)
}

func TestPipelineService_Run_TopicErrors(t *testing.T) {
	f := newPipelineFixture(t, true, true)

	_, err := f.svc.Run(context.Background(), "missing", []model.Mode{model.ModeFullText})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load topic")
}

func TestPipelineService_Generate(t *testing.T) {
	t.Run("cache first", func(t *testing.T) {
		f := newPipelineFixture(t, true, true)
		gc := model.GenerationContext{Specialty: "Medicine", ParentGrouping: "Respiratory", Title: "Asthma"}

		f.ps.anthropic.EXPECT().Complete(gomock.Any(), forMode(model.ModeFullText)).
			Return(completion(model.ProviderAnthropic, sonnet, fullTextJSON), nil).Times(1)

		first, err := f.svc.Generate(context.Background(), model.ModeFullText, gc)
		require.NoError(t, err)
		assert.False(t, first.Metadata.CacheHit)
		assert.Equal(t, model.ProviderAnthropic, first.Metadata.Provider)
		assert.True(t, first.Metadata.Structured)

		second, err := f.svc.Generate(context.Background(), model.ModeFullText, gc)
		require.NoError(t, err)
		assert.True(t, second.Metadata.CacheHit)
		assert.Equal(t, 1, second.Metadata.CacheHits)
		assert.Equal(t, first.Payload, second.Payload)
		assert.Equal(t, 1, f.cache.only(t).Hits)
	})

	t.Run("dependent mode requires full text", func(t *testing.T) {
		f := newPipelineFixture(t, true, true)
		_, err := f.svc.Generate(context.Background(), model.ModeFlashcards, model.GenerationContext{Title: "Asthma"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
		assert.Equal(t, "context.full_text", apperrors.GetField(err))
	})

	t.Run("unknown mode", func(t *testing.T) {
		f := newPipelineFixture(t, true, true)
		_, err := f.svc.Generate(context.Background(), model.Mode("essay"), model.GenerationContext{Title: "x"})
		require.Error(t, err)
		assert.True(t, apperrors.IsValidation(err))
	})

	t.Run("missing credentials", func(t *testing.T) {
		f := newPipelineFixture(t, false, false)
		_, err := f.svc.Generate(context.Background(), model.ModeFullText, model.GenerationContext{Title: "x"})
		require.ErrorIs(t, err, core.ErrMissingCredential)
		assert.False(t, strings.Contains(err.Error(), "panic"))
	})
}
