package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/pkg/database"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestAttemptRepo(t *testing.T) (LoginAttemptRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewLoginAttemptRepository(database.NewRedisFromClient(client)), mr
}

var testNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func TestLoginAttemptRepository_GetMissing(t *testing.T) {
	repo, _ := newTestAttemptRepo(t)

	_, err := repo.Get(context.Background(), "user@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoginAttemptRepository_LocksAtMaxAttempts(t *testing.T) {
	repo, _ := newTestAttemptRepo(t)
	ctx := context.Background()
	policy := domain.DefaultLockoutPolicy()

	for i := 1; i < policy.MaxAttempts; i++ {
		rec, err := repo.RecordFailure(ctx, "user@example.com", uuid.NewString(), policy, testNow.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		assert.Equal(t, i, rec.Attempts)
		assert.Nil(t, rec.LockedUntil)
	}

	now := testNow.Add(5 * time.Minute)
	rec, err := repo.RecordFailure(ctx, "user@example.com", uuid.NewString(), policy, now)
	require.NoError(t, err)
	assert.Equal(t, 5, rec.Attempts)
	require.NotNil(t, rec.LockedUntil)
	assert.Equal(t, now.Add(15*time.Minute).UnixMilli(), rec.LockedUntil.UnixMilli())

	stored, err := repo.Get(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Attempts)
	assert.Equal(t, rec.LockedUntil.UnixMilli(), stored.LockedUntil.UnixMilli())
	assert.Equal(t, now.UnixMilli(), stored.LastAttempt.UnixMilli())
}

func TestLoginAttemptRepository_ProgressiveCycles(t *testing.T) {
	repo, _ := newTestAttemptRepo(t)
	ctx := context.Background()
	policy := domain.DefaultLockoutPolicy()

	var rec *domain.LoginAttempt
	var err error
	now := testNow
	for i := 0; i < 10; i++ {
		now = now.Add(time.Second)
		rec, err = repo.RecordFailure(ctx, "203.0.113.7", uuid.NewString(), policy, now)
		require.NoError(t, err)
	}

	assert.Equal(t, 10, rec.Attempts)
	require.NotNil(t, rec.LockedUntil)
	assert.Equal(t, 30*time.Minute, rec.LockedUntil.Sub(now))
}

func TestLoginAttemptRepository_StaleWindowResets(t *testing.T) {
	repo, _ := newTestAttemptRepo(t)
	ctx := context.Background()
	policy := domain.DefaultLockoutPolicy()

	for i := 0; i < 3; i++ {
		_, err := repo.RecordFailure(ctx, "user@example.com", uuid.NewString(), policy, testNow)
		require.NoError(t, err)
	}

	rec, err := repo.RecordFailure(ctx, "user@example.com", uuid.NewString(), policy, testNow.Add(policy.Window+time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Attempts)
	assert.Nil(t, rec.LockedUntil)
}

func TestLoginAttemptRepository_ExpiresIdleRecords(t *testing.T) {
	repo, mr := newTestAttemptRepo(t)
	ctx := context.Background()
	policy := domain.DefaultLockoutPolicy()

	_, err := repo.RecordFailure(ctx, "user@example.com", uuid.NewString(), policy, testNow)
	require.NoError(t, err)

	assert.Equal(t, policy.RecordTTL, mr.TTL("lockout:user@example.com"))

	mr.FastForward(policy.RecordTTL + time.Second)
	_, err = repo.Get(ctx, "user@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoginAttemptRepository_Delete(t *testing.T) {
	repo, _ := newTestAttemptRepo(t)
	ctx := context.Background()

	_, err := repo.RecordFailure(ctx, "user@example.com", uuid.NewString(), domain.DefaultLockoutPolicy(), testNow)
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "user@example.com"))
	require.NoError(t, repo.Delete(ctx, "user@example.com"))

	_, err = repo.Get(ctx, "user@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoginAttemptRepository_ConcurrentFailuresAreNotLost(t *testing.T) {
	repo, _ := newTestAttemptRepo(t)
	ctx := context.Background()
	policy := domain.DefaultLockoutPolicy()

	for i := 0; i < 4; i++ {
		_, err := repo.RecordFailure(ctx, "user@example.com", uuid.NewString(), policy, testNow)
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	results := make([]*domain.LoginAttempt, 2)
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = repo.RecordFailure(ctx, "user@example.com", uuid.NewString(), policy, testNow.Add(time.Second))
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.ElementsMatch(t, []int{5, 6}, []int{results[0].Attempts, results[1].Attempts})

	stored, err := repo.Get(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, 6, stored.Attempts)
	assert.NotNil(t, stored.LockedUntil)
}

func TestLoginAttemptRepository_ReplayedAttemptCountsOnce(t *testing.T) {
	repo, _ := newTestAttemptRepo(t)
	ctx := context.Background()
	policy := domain.DefaultLockoutPolicy()

	_, err := repo.RecordFailure(ctx, "user@example.com", uuid.NewString(), policy, testNow)
	require.NoError(t, err)

	attemptID := uuid.NewString()
	first, err := repo.RecordFailure(ctx, "user@example.com", attemptID, policy, testNow.Add(time.Second))
	require.NoError(t, err)
	again, err := repo.RecordFailure(ctx, "user@example.com", attemptID, policy, testNow.Add(2*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 2, first.Attempts)
	assert.Equal(t, 2, again.Attempts)

	stored, err := repo.Get(ctx, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Attempts)
	assert.Equal(t, testNow.Add(time.Second).UnixMilli(), stored.LastAttempt.UnixMilli())
}
