package repository

import (
	"context"
	"time"

	"github.com/prperemyshlev/care-auth/internal/domain"
)

// UserRepository defines methods for user operations.
// Lookups never return soft-deleted users.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByFederation(ctx context.Context, provider, subject string) (*domain.User, error)
	GetByRefreshTokenHash(ctx context.Context, hash string) (*domain.User, error)
	UpdateLastLogin(ctx context.Context, userID string, at time.Time) error

	// LinkFederation attaches an external identity to a user that has none
	LinkFederation(ctx context.Context, userID, provider, subject string) error
	// CompleteRegistration promotes a pending user; ErrConflict when the user is no longer pending
	CompleteRegistration(ctx context.Context, userID string, c domain.RoleCompletion) error

	SetRefreshToken(ctx context.Context, userID, hash string, expiresAt time.Time) error
	// RotateRefreshToken swaps oldHash for newHash only while oldHash is current and unexpired.
	// It returns the owning user id, or ErrConflict when another rotation won.
	RotateRefreshToken(ctx context.Context, oldHash, newHash string, expiresAt, now time.Time) (string, error)
	ClearRefreshToken(ctx context.Context, userID string) error

	SetPasswordResetOTP(ctx context.Context, userID, hash string, expiresAt time.Time) error
	// ReserveOTPAttempt claims one code check while fewer than maxAttempts are
	// used and returns the new count; ErrConflict once the cap is reached
	ReserveOTPAttempt(ctx context.Context, userID string, maxAttempts int) (int, error)
	// ReleaseOTPAttempt hands back a claim taken for a code that turned out correct
	ReleaseOTPAttempt(ctx context.Context, userID string) error
	// ResetPasswordWithOTP consumes the code; ErrConflict when it is no longer valid
	ResetPasswordWithOTP(ctx context.Context, userID, otpHash, passwordHash string, maxAttempts int, now time.Time) error

	SetPasswordResetToken(ctx context.Context, userID, hash string, expiresAt time.Time) error
	// ResetPasswordWithToken consumes a reset-link token by hash, or by its raw value
	// for rows written in the clear before hashing, and returns the user id.
	ResetPasswordWithToken(ctx context.Context, tokenHash, rawToken, passwordHash string, now time.Time) (string, error)
}

// LoginAttemptRepository persists failed-login counters in the shared store
type LoginAttemptRepository interface {
	Get(ctx context.Context, identifier string) (*domain.LoginAttempt, error)
	// RecordFailure applies one failed attempt atomically and returns the new record
	RecordFailure(ctx context.Context, identifier, attemptID string, policy domain.LockoutPolicy, now time.Time) (*domain.LoginAttempt, error)
	Delete(ctx context.Context, identifier string) error
}
