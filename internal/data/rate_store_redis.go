package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medforge/contentgen/internal/domain/model"
	"github.com/medforge/contentgen/internal/domain/ratelimit"
)

const redisRatePrefix = "contentgen:rate:"

// takeScript implements a fixed window shared by all replicas.
// Returns {allowed, count, ttl_ms}. The window starts with the first request and lives as the key TTL.
var takeScript = redis.NewScript(`
local limit = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local count = redis.call('GET', KEYS[1])
if not count then
  redis.call('SET', KEYS[1], 1, 'PX', window_ms)
  return {1, 1, window_ms}
end
count = tonumber(count)
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
  redis.call('PEXPIRE', KEYS[1], window_ms)
  ttl = window_ms
end
if count < limit then
  redis.call('INCR', KEYS[1])
  return {1, count + 1, ttl}
end
return {0, count, ttl}
`)

// RedisRateStore keeps fixed-window counters in Redis. Window timing follows the Redis clock.
type RedisRateStore struct {
	client redis.UniversalClient
}

// NewRedisRateStore creates a new RedisRateStore.
func NewRedisRateStore(client redis.UniversalClient) *RedisRateStore {
	return &RedisRateStore{client: client}
}

// Take applies one request for identity.
func (s *RedisRateStore) Take(ctx context.Context, identity string, w ratelimit.Window, _ time.Time) (model.RateDecision, error) {
	if identity == "" {
		return model.RateDecision{}, errors.New("identity cannot be empty")
	}
	w = w.Normalize()

	reply, err := takeScript.Run(ctx, s.client, []string{redisRatePrefix + identity}, w.Limit, w.Length.Milliseconds()).Int64Slice()
	if err != nil {
		return model.RateDecision{}, fmt.Errorf("redis rate take: %w", err)
	}
	if len(reply) != 3 {
		return model.RateDecision{}, fmt.Errorf("redis rate take: unexpected reply of %d elements", len(reply))
	}

	if reply[0] == 1 {
		return model.RateDecision{Allowed: true, Remaining: w.Limit - int(reply[1])}, nil
	}
	return model.RateDecision{Allowed: false, RetryAfter: time.Duration(reply[2]) * time.Millisecond}, nil
}
