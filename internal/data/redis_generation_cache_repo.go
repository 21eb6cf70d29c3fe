package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medforge/contentgen/internal/domain/model"
)

const redisCachePrefix = "contentgen:cache:"

// lookupScript bumps hits and last access atomically and returns {entry, hits}, or nil on miss.
var lookupScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return false
end
local hits = redis.call('HINCRBY', KEYS[1], 'hits', 1)
redis.call('HSET', KEYS[1], 'last_accessed_at', ARGV[1])
return {redis.call('HGET', KEYS[1], 'entry'), hits}
`)

// RedisGenerationCacheRepo stores generation results in Redis hashes expiring at the entry's expires_at.
type RedisGenerationCacheRepo struct {
	client redis.UniversalClient
}

// NewRedisGenerationCacheRepo creates a new RedisGenerationCacheRepo.
func NewRedisGenerationCacheRepo(client redis.UniversalClient) *RedisGenerationCacheRepo {
	return &RedisGenerationCacheRepo{client: client}
}

func redisCacheKey(key string) string {
	return redisCachePrefix + key
}

// Lookup returns the live entry for key and increments its hits.
func (r *RedisGenerationCacheRepo) Lookup(ctx context.Context, key string, now time.Time) (*model.CacheEntry, error) {
	if key == "" {
		return nil, errors.New("key cannot be empty")
	}
	rk := redisCacheKey(key)
	raw, err := lookupScript.Run(ctx, r.client, []string{rk}, now.UTC().Format(time.RFC3339Nano)).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis cache lookup: %w", err)
	}
	if len(raw) != 2 {
		return nil, fmt.Errorf("redis cache lookup: unexpected reply of %d elements", len(raw))
	}
	body, ok := raw[0].(string)
	if !ok {
		return nil, nil
	}

	var entry model.CacheEntry
	if err := json.Unmarshal([]byte(body), &entry); err != nil {
		return nil, fmt.Errorf("decode cached entry: %w", err)
	}
	// key TTL normally removes expired hashes; this covers clock skew between app and redis
	if entry.Expired(now) {
		if err := r.client.Del(ctx, rk).Err(); err != nil {
			return nil, fmt.Errorf("redis evict expired entry: %w", err)
		}
		return nil, nil
	}
	if hits, ok := raw[1].(int64); ok {
		entry.Hits = int(hits)
	}
	entry.LastAccessedAt = now.UTC()
	return &entry, nil
}

// Upsert writes entry and sets the key to expire at entry.ExpiresAt. Existing hits are kept.
func (r *RedisGenerationCacheRepo) Upsert(ctx context.Context, e *model.CacheEntry) error {
	if e == nil || e.Key == "" {
		return errors.New("cache entry with key is required")
	}
	stored := *e
	stored.Hits = 0
	body, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	rk := redisCacheKey(e.Key)
	_, err = r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, rk, "entry", body, "last_accessed_at", e.CreatedAt.UTC().Format(time.RFC3339Nano))
		p.HSetNX(ctx, rk, "hits", strconv.Itoa(0))
		p.PExpireAt(ctx, rk, e.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis cache upsert: %w", err)
	}
	return nil
}

// PurgeExpired is a no-op: Redis expires keys itself.
func (r *RedisGenerationCacheRepo) PurgeExpired(context.Context, time.Time, int) (int64, error) {
	return 0, nil
}

// Health checks the Redis connection.
func (r *RedisGenerationCacheRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
