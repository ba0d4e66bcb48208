package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/pkg/database"
)

const uniqueViolation = "23505"

const userColumns = `
	id, email, password_hash, role, first_name, last_name, phone, tenant_id,
	is_active, is_deleted, is_email_verified, federation_provider, federation_id,
	password_reset_token, password_reset_token_hashed, password_reset_expires_at,
	password_reset_otp_hash, password_reset_otp_expires_at, password_reset_otp_attempts,
	refresh_token_hash, refresh_token_expires_at,
	professional_registry, clinic_name, clinic_document,
	terms_accepted, terms_accepted_at, disclaimer_accepted, disclaimer_accepted_at,
	last_login_at, created_at, updated_at`

// userRepository implements UserRepository interface
type userRepository struct {
	db *database.Postgres
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *database.Postgres) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (
			id, email, password_hash, role, first_name, last_name, phone, tenant_id,
			is_active, is_email_verified, federation_provider, federation_id,
			professional_registry, clinic_name, clinic_document,
			terms_accepted, terms_accepted_at, disclaimer_accepted, disclaimer_accepted_at,
			created_at, updated_at
		) VALUES (
			:id, :email, :password_hash, :role, :first_name, :last_name, :phone, :tenant_id,
			:is_active, :is_email_verified, :federation_provider, :federation_id,
			:professional_registry, :clinic_name, :clinic_document,
			:terms_accepted, :terms_accepted_at, :disclaimer_accepted, :disclaimer_accepted_at,
			:created_at, :updated_at
		)
	`

	// Generate UUID if not provided
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	now := time.Now()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	if _, err := r.db.DB.NamedExecContext(ctx, query, user); err != nil {
		return mapWriteError(err, "failed to create user")
	}

	return nil
}

// GetByEmail retrieves a user by email; the citext column makes the match case-insensitive
func (r *userRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, "user by email", `WHERE email = $1`, email)
}

// GetByID retrieves a user by ID
func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("user id %q is not a uuid: %w", id, ErrNotFound)
	}
	return r.getOne(ctx, "user by id", `WHERE id = $1`, id)
}

// GetByFederation retrieves the user linked to an external identity
func (r *userRepository) GetByFederation(ctx context.Context, provider, subject string) (*domain.User, error) {
	return r.getOne(ctx, "user by federation", `WHERE federation_provider = $1 AND federation_id = $2`, provider, subject)
}

// GetByRefreshTokenHash retrieves the owner of a refresh token
func (r *userRepository) GetByRefreshTokenHash(ctx context.Context, hash string) (*domain.User, error) {
	return r.getOne(ctx, "user by refresh token", `WHERE refresh_token_hash = $1`, hash)
}

func (r *userRepository) getOne(ctx context.Context, what, where string, args ...any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ` + where + ` AND NOT is_deleted`

	var user domain.User
	if err := r.db.DB.GetContext(ctx, &user, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", what, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	return &user, nil
}

// UpdateLastLogin updates the last login timestamp for a user
func (r *userRepository) UpdateLastLogin(ctx context.Context, userID string, at time.Time) error {
	query := `UPDATE users SET last_login_at = $2 WHERE id = $1`

	result, err := r.db.DB.ExecContext(ctx, query, userID, at)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return expectOneRow(result, ErrNotFound)
}

// LinkFederation attaches an external identity; a verified provider email also verifies ours
func (r *userRepository) LinkFederation(ctx context.Context, userID, provider, subject string) error {
	query := `
		UPDATE users
		SET federation_provider = $2, federation_id = $3, is_email_verified = TRUE, updated_at = NOW()
		WHERE id = $1 AND federation_id IS NULL AND NOT is_deleted
	`

	result, err := r.db.DB.ExecContext(ctx, query, userID, provider, subject)
	if err != nil {
		return mapWriteError(err, "failed to link federation")
	}
	return expectOneRow(result, ErrConflict)
}

// CompleteRegistration promotes a pending user to its chosen role
func (r *userRepository) CompleteRegistration(ctx context.Context, userID string, c domain.RoleCompletion) error {
	query := `
		UPDATE users
		SET role = $2,
			first_name = COALESCE(NULLIF($3, ''), first_name),
			last_name = COALESCE(NULLIF($4, ''), last_name),
			phone = COALESCE($5, phone),
			tenant_id = $6,
			professional_registry = $7,
			clinic_name = $8,
			clinic_document = $9,
			terms_accepted = TRUE,
			terms_accepted_at = $10,
			disclaimer_accepted = TRUE,
			disclaimer_accepted_at = $11,
			updated_at = $10
		WHERE id = $1 AND role = 'pending' AND NOT is_deleted
	`

	result, err := r.db.DB.ExecContext(ctx, query,
		userID,
		c.Role,
		c.FirstName,
		c.LastName,
		c.Phone,
		c.TenantID,
		c.ProfessionalRegistry,
		c.ClinicName,
		c.ClinicDocument,
		c.TermsAcceptedAt,
		c.DisclaimerAcceptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to complete registration: %w", err)
	}
	return expectOneRow(result, ErrConflict)
}

// SetRefreshToken overwrites the single refresh slot
func (r *userRepository) SetRefreshToken(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET refresh_token_hash = $2, refresh_token_expires_at = $3
		WHERE id = $1 AND NOT is_deleted
	`

	result, err := r.db.DB.ExecContext(ctx, query, userID, hash, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store refresh token: %w", err)
	}
	return expectOneRow(result, ErrNotFound)
}

// RotateRefreshToken swaps the refresh slot in one conditional statement
func (r *userRepository) RotateRefreshToken(ctx context.Context, oldHash, newHash string, expiresAt, now time.Time) (string, error) {
	query := `
		UPDATE users
		SET refresh_token_hash = $2, refresh_token_expires_at = $3
		WHERE refresh_token_hash = $1
			AND refresh_token_expires_at > $4
			AND is_active AND NOT is_deleted
		RETURNING id
	`

	var userID string
	if err := r.db.DB.GetContext(ctx, &userID, query, oldHash, newHash, expiresAt, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return userID, nil
}

// ClearRefreshToken empties the refresh slot
func (r *userRepository) ClearRefreshToken(ctx context.Context, userID string) error {
	query := `UPDATE users SET refresh_token_hash = NULL, refresh_token_expires_at = NULL WHERE id = $1`

	if _, err := r.db.DB.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to clear refresh token: %w", err)
	}
	return nil
}

// SetPasswordResetOTP stores a fresh code hash and resets its attempt counter
func (r *userRepository) SetPasswordResetOTP(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET password_reset_otp_hash = $2,
			password_reset_otp_expires_at = $3,
			password_reset_otp_attempts = 0,
			updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted
	`

	result, err := r.db.DB.ExecContext(ctx, query, userID, hash, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store password reset code: %w", err)
	}
	return expectOneRow(result, ErrNotFound)
}

// ReserveOTPAttempt counts a code check before the code is compared, so
// concurrent checks can never compare more codes than the cap allows.
func (r *userRepository) ReserveOTPAttempt(ctx context.Context, userID string, maxAttempts int) (int, error) {
	query := `
		UPDATE users
		SET password_reset_otp_attempts = password_reset_otp_attempts + 1
		WHERE id = $1 AND password_reset_otp_attempts < $2
		RETURNING password_reset_otp_attempts
	`

	var attempts int
	if err := r.db.DB.GetContext(ctx, &attempts, query, userID, maxAttempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrConflict
		}
		return 0, fmt.Errorf("failed to reserve code attempt: %w", err)
	}
	return attempts, nil
}

// ReleaseOTPAttempt returns a reserved check; correct codes do not use up attempts
func (r *userRepository) ReleaseOTPAttempt(ctx context.Context, userID string) error {
	query := `
		UPDATE users
		SET password_reset_otp_attempts = password_reset_otp_attempts - 1
		WHERE id = $1 AND password_reset_otp_attempts > 0
	`

	if _, err := r.db.DB.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to release code attempt: %w", err)
	}
	return nil
}

// ResetPasswordWithOTP sets the new password only while the code is still
// current, and clears every recovery artifact and the refresh slot with it.
func (r *userRepository) ResetPasswordWithOTP(ctx context.Context, userID, otpHash, passwordHash string, maxAttempts int, now time.Time) error {
	query := `
		UPDATE users
		SET password_hash = $3,
			password_reset_otp_hash = NULL,
			password_reset_otp_expires_at = NULL,
			password_reset_otp_attempts = 0,
			password_reset_token = NULL,
			password_reset_token_hashed = FALSE,
			password_reset_expires_at = NULL,
			refresh_token_hash = NULL,
			refresh_token_expires_at = NULL,
			updated_at = $5
		WHERE id = $1
			AND password_reset_otp_hash = $2
			AND password_reset_otp_expires_at > $5
			AND password_reset_otp_attempts < $4
			AND NOT is_deleted
	`

	result, err := r.db.DB.ExecContext(ctx, query, userID, otpHash, passwordHash, maxAttempts, now)
	if err != nil {
		return fmt.Errorf("failed to reset password: %w", err)
	}
	return expectOneRow(result, ErrConflict)
}

// SetPasswordResetToken stores a reset-link token hash
func (r *userRepository) SetPasswordResetToken(ctx context.Context, userID, hash string, expiresAt time.Time) error {
	query := `
		UPDATE users
		SET password_reset_token = $2,
			password_reset_token_hashed = TRUE,
			password_reset_expires_at = $3,
			updated_at = NOW()
		WHERE id = $1 AND NOT is_deleted
	`

	result, err := r.db.DB.ExecContext(ctx, query, userID, hash, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to store password reset token: %w", err)
	}
	return expectOneRow(result, ErrNotFound)
}

// ResetPasswordWithToken consumes a reset-link token. The raw value only
// matches rows written before tokens were hashed, so a leaked hash is useless.
func (r *userRepository) ResetPasswordWithToken(ctx context.Context, tokenHash, rawToken, passwordHash string, now time.Time) (string, error) {
	query := `
		UPDATE users
		SET password_hash = $3,
			password_reset_token = NULL,
			password_reset_token_hashed = FALSE,
			password_reset_expires_at = NULL,
			password_reset_otp_hash = NULL,
			password_reset_otp_expires_at = NULL,
			password_reset_otp_attempts = 0,
			refresh_token_hash = NULL,
			refresh_token_expires_at = NULL,
			updated_at = $4
		WHERE ((password_reset_token = $1 AND password_reset_token_hashed)
				OR (password_reset_token = $2 AND NOT password_reset_token_hashed))
			AND password_reset_expires_at > $4
			AND NOT is_deleted
		RETURNING id
	`

	var userID string
	if err := r.db.DB.GetContext(ctx, &userID, query, tokenHash, rawToken, passwordHash, now); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrConflict
		}
		return "", fmt.Errorf("failed to reset password: %w", err)
	}
	return userID, nil
}

func expectOneRow(result sql.Result, none error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return none
	}
	return nil
}

func mapWriteError(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		if pqErr.Constraint == "users_federation_key" {
			return fmt.Errorf("%s: %w", msg, ErrDuplicateFederation)
		}
		return fmt.Errorf("%s: %w", msg, ErrDuplicateEmail)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
