package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/domain/mode"
	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/mocks"
)

var testNow = time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)

// memCacheRepo is an in-memory GenerationCacheRepository with the same hit and expiry rules as the real backends.
type memCacheRepo struct {
	mu        sync.Mutex
	entries   map[string]*model.CacheEntry
	upserts   int
	lookupErr error
	upsertErr error
}

func newMemCacheRepo() *memCacheRepo {
	return &memCacheRepo{entries: map[string]*model.CacheEntry{}}
}

func (r *memCacheRepo) Lookup(_ context.Context, key string, now time.Time) (*model.CacheEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	e, ok := r.entries[key]
	if !ok {
		return nil, nil
	}
	if e.Expired(now) {
		delete(r.entries, key)
		return nil, nil
	}
	e.Hits++
	e.LastAccessedAt = now
	cp := *e
	return &cp, nil
}

func (r *memCacheRepo) Upsert(_ context.Context, entry *model.CacheEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.upserts++
	cp := *entry
	if prev, ok := r.entries[entry.Key]; ok {
		cp.Hits = prev.Hits
	}
	r.entries[entry.Key] = &cp
	return nil
}

func (r *memCacheRepo) PurgeExpired(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

func (r *memCacheRepo) only(t *testing.T) *model.CacheEntry {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.entries, 1)
	for _, e := range r.entries {
		return e
	}
	return nil
}

type fakeTopicRepo struct {
	mu        sync.Mutex
	topics    map[string]*model.Topic
	fullText  []model.TopicFullTextUpdate
	highYield map[string]string
	updateErr error
}

func newFakeTopicRepo(topics ...*model.Topic) *fakeTopicRepo {
	r := &fakeTopicRepo{topics: map[string]*model.Topic{}, highYield: map[string]string{}}
	for _, t := range topics {
		r.topics[t.ID] = t
	}
	return r
}

func (r *fakeTopicRepo) GetByID(_ context.Context, id string) (*model.Topic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.topics[id]
	if !ok {
		return nil, errors.New("topic not found")
	}
	cp := *t
	return &cp, nil
}

func (r *fakeTopicRepo) UpdateFullText(_ context.Context, u model.TopicFullTextUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.fullText = append(r.fullText, u)
	r.topics[u.TopicID].FullText = u.FullText
	return nil
}

func (r *fakeTopicRepo) UpdateHighYield(_ context.Context, topicID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	r.highYield[topicID] = text
	r.topics[topicID].HighYield = text
	return nil
}

type fakeFlashcardRepo struct {
	mu    sync.Mutex
	cards []model.Flashcard
	err   error
}

func (r *fakeFlashcardRepo) BulkInsert(_ context.Context, cards []model.Flashcard) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.cards = append(r.cards, cards...)
	return len(cards), nil
}

type fakeQuestionRepo struct {
	mu        sync.Mutex
	questions []model.Question
	err       error
}

func (r *fakeQuestionRepo) BulkInsert(_ context.Context, questions []model.Question) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return 0, r.err
	}
	r.questions = append(r.questions, questions...)
	return len(questions), nil
}

// providerSet holds the gomock providers behind a router.
type providerSet struct {
	anthropic *mocks.MockProvider
	gemini    *mocks.MockProvider
}

func newProviderSet(ctrl *gomock.Controller, anthropicKey, geminiKey bool) providerSet {
	a := mocks.NewMockProvider(ctrl)
	a.EXPECT().Kind().Return(model.ProviderAnthropic).AnyTimes()
	a.EXPECT().Configured().Return(anthropicKey).AnyTimes()

	g := mocks.NewMockProvider(ctrl)
	g.EXPECT().Kind().Return(model.ProviderGemini).AnyTimes()
	g.EXPECT().Configured().Return(geminiKey).AnyTimes()
	return providerSet{anthropic: a, gemini: g}
}

func newTestRouter(t *testing.T, ps providerSet) *ModelRouter {
	t.Helper()
	r, err := NewModelRouter(ModelRouterOptions{
		Catalog:         mode.MustLoadDefault(),
		Providers:       []core.Provider{ps.anthropic, ps.gemini},
		DefaultProvider: model.ProviderAnthropic,
		Now:             func() time.Time { return testNow },
	})
	require.NoError(t, err)
	return r
}

func completion(kind model.ProviderKind, modelID, text string) *core.CompletionResponse {
	return &core.CompletionResponse{
		Provider:  kind,
		Model:     modelID,
		Fragments: []string{text},
		Usage:     model.TokenUsage{InputTokens: 1000, OutputTokens: 2000},
	}
}

// forMode matches a CompletionRequest by mode.
func forMode(m model.Mode) gomock.Matcher {
	return gomock.Cond(func(x any) bool {
		req, ok := x.(core.CompletionRequest)
		return ok && req.Mode == m
	})
}
