package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "kycflow:ratelimit:"

// slidingWindow trims the window, then admits the request when there is
// room. Returns {allowed, count, oldest score}.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
return {allowed, count, oldest[2] or tostring(now)}
`)

// RedisStore shares the window across server instances using a sorted set
// per key.
type RedisStore struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now}
}

func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := s.now()
	raw, err := slidingWindow.Run(ctx, s.client, []string{keyPrefix + key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check: %w", err)
	}
	if len(raw) != 3 {
		return Result{}, fmt.Errorf("rate limit check: unexpected reply %v", raw)
	}
	allowed, _ := raw[0].(int64)
	count, _ := raw[1].(int64)
	oldestMillis, err := strconv.ParseInt(fmt.Sprint(raw[2]), 10, 64)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit check: oldest score: %w", err)
	}
	resetAt := time.UnixMilli(oldestMillis).Add(window)

	if allowed == 0 {
		return Result{Limit: limit, ResetAt: resetAt, RetryAfter: resetAt.Sub(now)}, nil
	}
	return Result{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - int(count),
		ResetAt:   resetAt,
	}, nil
}
