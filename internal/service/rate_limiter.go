package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prperemyshlev/care-auth/pkg/database"
	"github.com/redis/go-redis/v9"
)

const rateLimitKeyPrefix = "ratelimit:"

// slidingWindowScript keeps one sorted-set member per admitted request.
// Trimming, counting and admitting happen in one step so concurrent instances
// never admit more than the limit.
//
// ARGV: now_ms, window_ms, limit, member
// Returns {allowed, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', now - window)

local count = redis.call('ZCARD', KEYS[1])
if count >= limit then
    local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
    local retry = window
    if oldest[2] then
        retry = tonumber(oldest[2]) + window - now
    end
    return {0, retry}
end

redis.call('ZADD', KEYS[1], now, ARGV[4])
redis.call('PEXPIRE', KEYS[1], window)
return {1, 0}
`)

// RateLimitError is returned when a key has used up its window
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, try again in %v", e.RetryAfter.Round(time.Second))
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	redis *database.Redis
	clock clockwork.Clock
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redis *database.Redis, clock clockwork.Clock) *RateLimiter {
	return &RateLimiter{redis: redis, clock: clock}
}

// Allow admits one request for key. It returns a *RateLimitError once the
// limit is reached within window and a plain error when Redis fails.
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) error {
	now := r.clock.Now().UnixMilli()

	res, err := slidingWindowScript.Run(ctx, r.redis.Client,
		[]string{rateLimitKeyPrefix + key},
		now, window.Milliseconds(), limit, fmt.Sprintf("%d-%s", now, uuid.NewString()),
	).Int64Slice()
	if err != nil {
		return fmt.Errorf("failed to apply rate limit: %w", err)
	}
	if len(res) != 2 {
		return fmt.Errorf("unexpected rate limit reply: %v", res)
	}

	if res[0] == 0 {
		retry := time.Duration(res[1]) * time.Millisecond
		if retry < time.Second {
			retry = time.Second
		}
		return &RateLimitError{RetryAfter: retry}
	}
	return nil
}

// Remaining returns how many requests key may still make in the current window
func (r *RateLimiter) Remaining(ctx context.Context, key string, limit int, window time.Duration) (int, error) {
	redisKey := rateLimitKeyPrefix + key
	windowStart := r.clock.Now().Add(-window).UnixMilli()

	count, err := r.redis.Client.ZCount(ctx, redisKey, fmt.Sprintf("(%d", windowStart), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}

	return max(limit-int(count), 0), nil
}
