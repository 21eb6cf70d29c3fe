package data

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medforge/contentgen/internal/core"
	"github.com/medforge/contentgen/internal/domain/ratelimit"
	"github.com/medforge/contentgen/internal/testutil"
)

var (
	_ core.RateLimitStore = (*MemoryRateStore)(nil)
	_ core.RateLimitStore = (*RedisRateStore)(nil)
)

func TestMemoryRateStore_Take(t *testing.T) {
	store := NewMemoryRateStore()
	ctx := context.Background()
	w := ratelimit.Window{Limit: 2, Length: time.Minute}
	now := testutil.TestTime()

	d, err := store.Take(ctx, "10.0.0.1", w, now)
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)

	d, _ = store.Take(ctx, "10.0.0.1", w, now.Add(time.Second))
	assert.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	d, _ = store.Take(ctx, "10.0.0.1", w, now.Add(30*time.Second))
	assert.False(t, d.Allowed)
	assert.Equal(t, 30*time.Second, d.RetryAfter)

	d, _ = store.Take(ctx, "10.0.0.2", w, now.Add(30*time.Second))
	assert.True(t, d.Allowed, "identities are independent")

	d, _ = store.Take(ctx, "10.0.0.1", w, now.Add(time.Minute))
	assert.True(t, d.Allowed, "window resets")
}

func TestMemoryRateStore_Sweep(t *testing.T) {
	store := NewMemoryRateStore()
	ctx := context.Background()
	w := ratelimit.Window{Limit: 5, Length: time.Minute}
	now := testutil.TestTime()

	_, _ = store.Take(ctx, "a", w, now)
	_, _ = store.Take(ctx, "b", w, now.Add(50*time.Second))
	assert.Equal(t, 2, store.Len())

	assert.Equal(t, 1, store.Sweep(now.Add(time.Minute)))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryRateStore_ConcurrentTakesNeverExceedLimit(t *testing.T) {
	store := NewMemoryRateStore()
	w := ratelimit.Window{Limit: 10, Length: time.Minute}
	now := testutil.TestTime()

	var mu sync.Mutex
	allowed := 0
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, _ := store.Take(context.Background(), "burst", w, now)
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, allowed)
}

func TestRedisRateStore_Take(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	store := NewRedisRateStore(client)
	ctx := context.Background()
	w := ratelimit.Window{Limit: 2, Length: time.Minute}

	for i := range 2 {
		d, err := store.Take(ctx, "10.1.1.1", w, time.Now())
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 1-i, d.Remaining)
	}

	d, err := store.Take(ctx, "10.1.1.1", w, time.Now())
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, 50*time.Second)
	assert.LessOrEqual(t, d.RetryAfter, time.Minute)

	_, err = store.Take(ctx, "", w, time.Now())
	require.Error(t, err)
}
