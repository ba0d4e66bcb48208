package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/pkg/database"
	"github.com/redis/go-redis/v9"
)

const loginAttemptKeyPrefix = "lockout:"

// recordFailureScript applies one failed attempt to the hash at KEYS[1].
// Running it server-side makes the read, the stale-window reset, the increment
// and the lock computation a single step for every instance sharing the store.
// A replayed attempt_id (a retry after a lost reply) returns the stored state
// without counting again.
//
// ARGV: now_ms, max_attempts, base_ms, window_ms, cap_ms, ttl_ms, attempt_id
// Returns {attempts, locked_until_ms, lock_ms}.
var recordFailureScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local max = tonumber(ARGV[2])
local base = tonumber(ARGV[3])
local window = tonumber(ARGV[4])
local cap = tonumber(ARGV[5])
local ttl = tonumber(ARGV[6])
local attempt_id = ARGV[7]

local state = redis.call('HMGET', KEYS[1], 'attempts', 'locked_until', 'last_attempt', 'last_id')
local attempts = tonumber(state[1]) or 0
local locked_until = tonumber(state[2]) or 0
local last = tonumber(state[3]) or 0

if state[4] == attempt_id then
    return {attempts, locked_until, 0}
end

if attempts > 0 and now - last > window then
    attempts = 0
    locked_until = 0
end

attempts = attempts + 1

local lock_ms = 0
if attempts >= max then
    local cycle = math.floor(attempts / max)
    lock_ms = base * (2 ^ (cycle - 1))
    if lock_ms > cap then
        lock_ms = cap
    end
    lock_ms = math.floor(lock_ms)
    locked_until = now + lock_ms
end

redis.call('HSET', KEYS[1], 'attempts', attempts, 'locked_until', locked_until, 'last_attempt', now, 'last_id', attempt_id)
redis.call('PEXPIRE', KEYS[1], ttl)

return {attempts, locked_until, lock_ms}
`)

// loginAttemptRepository implements LoginAttemptRepository on Redis
type loginAttemptRepository struct {
	redis *database.Redis
}

// NewLoginAttemptRepository creates a new login attempt repository
func NewLoginAttemptRepository(redis *database.Redis) LoginAttemptRepository {
	return &loginAttemptRepository{redis: redis}
}

func loginAttemptKey(identifier string) string {
	return loginAttemptKeyPrefix + identifier
}

// Get returns the stored record or ErrNotFound
func (r *loginAttemptRepository) Get(ctx context.Context, identifier string) (*domain.LoginAttempt, error) {
	fields, err := r.redis.Client.HGetAll(ctx, loginAttemptKey(identifier)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read login attempts: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}

	attempts, err := strconv.Atoi(fields["attempts"])
	if err != nil {
		return nil, fmt.Errorf("malformed attempts field: %w", err)
	}
	lockedUntil, err := parseMillis(fields["locked_until"])
	if err != nil {
		return nil, fmt.Errorf("malformed locked_until field: %w", err)
	}
	lastAttempt, err := parseMillis(fields["last_attempt"])
	if err != nil {
		return nil, fmt.Errorf("malformed last_attempt field: %w", err)
	}

	return newLoginAttempt(identifier, int64(attempts), lockedUntil, lastAttempt), nil
}

// RecordFailure runs the failure script and returns the resulting record.
// Calls sharing an attemptID count once.
func (r *loginAttemptRepository) RecordFailure(ctx context.Context, identifier, attemptID string, policy domain.LockoutPolicy, now time.Time) (*domain.LoginAttempt, error) {
	nowMs := now.UnixMilli()

	res, err := recordFailureScript.Run(ctx, r.redis.Client,
		[]string{loginAttemptKey(identifier)},
		nowMs,
		policy.MaxAttempts,
		policy.BaseDuration.Milliseconds(),
		policy.Window.Milliseconds(),
		policy.Cap.Milliseconds(),
		policy.RecordTTL.Milliseconds(),
		attemptID,
	).Int64Slice()
	if err != nil {
		return nil, fmt.Errorf("failed to record login attempt: %w", err)
	}
	if len(res) != 3 {
		return nil, fmt.Errorf("unexpected lockout script reply: %v", res)
	}

	return newLoginAttempt(identifier, res[0], res[1], nowMs), nil
}

// Delete removes the record; deleting a missing record is not an error
func (r *loginAttemptRepository) Delete(ctx context.Context, identifier string) error {
	if err := r.redis.Client.Del(ctx, loginAttemptKey(identifier)).Err(); err != nil {
		return fmt.Errorf("failed to delete login attempts: %w", err)
	}
	return nil
}

func newLoginAttempt(identifier string, attempts, lockedUntilMs, lastAttemptMs int64) *domain.LoginAttempt {
	attempt := &domain.LoginAttempt{
		Identifier:  identifier,
		Attempts:    int(attempts),
		LastAttempt: time.UnixMilli(lastAttemptMs),
	}
	if lockedUntilMs > 0 {
		t := time.UnixMilli(lockedUntilMs)
		attempt.LockedUntil = &t
	}
	return attempt
}

func parseMillis(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}
