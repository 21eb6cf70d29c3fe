package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medforge/contentgen/internal/data"
	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/domain/ratelimit"
)

type failingRateStore struct{ err error }

func (s failingRateStore) Take(context.Context, string, ratelimit.Window, time.Time) (model.RateDecision, error) {
	return model.RateDecision{}, s.err
}

type boundaryRateStore struct{}

func (boundaryRateStore) Take(context.Context, string, ratelimit.Window, time.Time) (model.RateDecision, error) {
	return model.RateDecision{Allowed: false}, nil
}

func TestNewRateLimiter(t *testing.T) {
	_, err := NewRateLimiter(RateLimiterOptions{})
	require.Error(t, err)

	l, err := NewRateLimiter(RateLimiterOptions{Store: data.NewMemoryRateStore()})
	require.NoError(t, err)
	assert.Equal(t, ratelimit.Window{Limit: 1, Length: time.Minute}, l.Window())
}

func TestRateLimiter_Allow(t *testing.T) {
	clock := testNow
	l, err := NewRateLimiter(RateLimiterOptions{
		Store:  data.NewMemoryRateStore(),
		Window: ratelimit.Window{Limit: 3, Length: time.Minute},
		Now:    func() time.Time { return clock },
	})
	require.NoError(t, err)
	ctx := context.Background()

	for i := range 3 {
		d := l.Allow(ctx, "user-1")
		require.True(t, d.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, d.Remaining)
	}

	clock = testNow.Add(20 * time.Second)
	denied := l.Allow(ctx, "user-1")
	assert.False(t, denied.Allowed)
	assert.Equal(t, 40*time.Second, denied.RetryAfter)

	assert.True(t, l.Allow(ctx, "user-2").Allowed, "identities are counted separately")

	clock = testNow.Add(time.Minute)
	assert.True(t, l.Allow(ctx, "user-1").Allowed, "new window")
}

func TestRateLimiter_AnonymousIdentity(t *testing.T) {
	l, err := NewRateLimiter(RateLimiterOptions{
		Store:  data.NewMemoryRateStore(),
		Window: ratelimit.Window{Limit: 1, Length: time.Minute},
		Now:    func() time.Time { return testNow },
	})
	require.NoError(t, err)

	assert.True(t, l.Allow(context.Background(), "").Allowed)
	assert.False(t, l.Allow(context.Background(), "   ").Allowed)
}

func TestRateLimiter_StoreErrorFailsOpen(t *testing.T) {
	l, err := NewRateLimiter(RateLimiterOptions{
		Store:  failingRateStore{err: errors.New("redis down")},
		Window: ratelimit.Window{Limit: 1, Length: time.Minute},
	})
	require.NoError(t, err)

	for range 5 {
		assert.True(t, l.Allow(context.Background(), "user-1").Allowed)
	}
}

func TestRateLimiter_DenialAlwaysHasRetryAfter(t *testing.T) {
	l, err := NewRateLimiter(RateLimiterOptions{Store: boundaryRateStore{}})
	require.NoError(t, err)

	d := l.Allow(context.Background(), "user-1")
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Second, d.RetryAfter)
}
