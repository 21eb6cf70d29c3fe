package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/medforge/contentgen/config"
	"github.com/medforge/contentgen/internal/domain/model"
)

type fakeQueue struct {
	mu         sync.Mutex
	enqueued   []model.EnqueueRequest
	jobs       []*model.GenerationJob
	enqueueErr error
	limits     []int
	results    []model.DrainResult
	drainErr   error
	status     *model.QueueStatus
	statusErr  error
}

func (q *fakeQueue) Enqueue(_ context.Context, req model.EnqueueRequest) ([]*model.GenerationJob, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, req)
	return q.jobs, q.enqueueErr
}

func (q *fakeQueue) Drain(_ context.Context, limit int) ([]model.DrainResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.limits = append(q.limits, limit)
	return q.results, q.drainErr
}

func (q *fakeQueue) Status(context.Context) (*model.QueueStatus, error) {
	return q.status, q.statusErr
}

type fakeGenerator struct {
	gotMode model.Mode
	gotCtx  model.GenerationContext
	calls   int
	res     *model.GenerationResult
	err     error
}

func (g *fakeGenerator) Generate(_ context.Context, m model.Mode, gc model.GenerationContext) (*model.GenerationResult, error) {
	g.calls++
	g.gotMode, g.gotCtx = m, gc
	return g.res, g.err
}

type fixedLimiter struct {
	mu         sync.Mutex
	identities []string
	decision   model.RateDecision
}

func (l *fixedLimiter) Allow(_ context.Context, identity string) model.RateDecision {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.identities = append(l.identities, identity)
	return l.decision
}

func testHTTPConfig() config.HTTPConfig {
	return config.HTTPConfig{
		CORSAllowedOrigins: []string{"https://app.example.com"},
		IdentityHeader:     "X-User-ID",
		MaxBodyBytes:       1 << 20,
		ReadTimeout:        15 * time.Second,
		WriteTimeout:       time.Minute,
	}
}

func postJSON(t *testing.T, h http.Handler, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
