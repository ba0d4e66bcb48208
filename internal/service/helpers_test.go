package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/repository"
	"github.com/prperemyshlev/care-auth/internal/testutil"
	"github.com/prperemyshlev/care-auth/internal/utils"
	"github.com/prperemyshlev/care-auth/pkg/database"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret   = "test-secret-key-that-is-at-least-32-characters-long"
	testCost     = 4
	testPassword = "Password123"
)

var testStart = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	clock    *clockwork.FakeClock
	redis    *database.Redis
	mr       *miniredis.Miniredis
	users    *testutil.UserStore
	notifier *testutil.Notifier

	tokens    *TokenService
	guard     *LockoutGuard
	recovery  *RecoveryService
	federated *FederatedIdentityService
	auth      AuthService
}

func newTestRedis(t *testing.T) (*database.Redis, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return database.NewRedisFromClient(client), mr
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		clock:    clockwork.NewFakeClockAt(testStart),
		users:    testutil.NewUserStore(),
		notifier: &testutil.Notifier{},
	}
	env.redis, env.mr = newTestRedis(t)

	logger := zap.NewNop()
	jwt := utils.NewJWTManager(testSecret, "care-auth", time.Hour, env.clock)

	env.tokens = NewTokenService(env.users, jwt, 30*24*time.Hour, env.clock)
	env.guard = NewLockoutGuard(
		repository.NewLoginAttemptRepository(env.redis),
		domain.DefaultLockoutPolicy(),
		DefaultGuardOptions(),
		env.clock, logger, nil,
	)
	env.recovery = NewRecoveryService(env.users, env.notifier, RecoveryOptions{
		OTPTTL:         10 * time.Minute,
		OTPMaxAttempts: 5,
		ResetTokenTTL:  time.Hour,
		ResetURLWeb:    "https://app.example.com/reset-password",
		ResetURLMobile: "careapp://reset-password",
		BCryptCost:     testCost,
	}, env.clock, logger, nil)
	env.federated = NewFederatedIdentityService(env.users, env.clock, logger)

	auth, err := NewAuthService(Deps{
		Users:      env.users,
		Tokens:     env.tokens,
		Guard:      env.guard,
		Recovery:   env.recovery,
		Federated:  env.federated,
		BCryptCost: testCost,
		Clock:      env.clock,
		Logger:     logger,
	})
	require.NoError(t, err)
	env.auth = auth

	return env
}

// seedUser stores an active patient with testPassword
func (e *testEnv) seedUser(t *testing.T, email string) *domain.User {
	t.Helper()

	hash, err := utils.HashPassword(testPassword, testCost)
	require.NoError(t, err)

	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: &hash,
		Role:         domain.RolePatient,
		FirstName:    "Ana",
		LastName:     "Souza",
		IsActive:     true,
		CreatedAt:    e.clock.Now(),
		UpdatedAt:    e.clock.Now(),
	}
	e.users.Put(user)
	return user
}

func kindOf(t *testing.T, err error) domain.ErrorKind {
	t.Helper()
	require.Error(t, err)
	kind, ok := domain.KindOf(err)
	require.True(t, ok, "not a domain error: %v", err)
	return kind
}

var bg = context.Background()
