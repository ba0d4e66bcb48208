// Package testutil holds in-memory stand-ins for the stores used in unit tests.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/repository"
)

// UserStore is an in-memory repository.UserRepository. Conditional updates
// follow the same rules as the SQL statements so concurrency tests are meaningful.
type UserStore struct {
	mu    sync.Mutex
	users map[string]*domain.User

	// Err, when set, is returned by every call
	Err error
}

var _ repository.UserRepository = (*UserStore)(nil)

func NewUserStore() *UserStore {
	return &UserStore{users: make(map[string]*domain.User)}
}

// Put stores a copy of user as is, skipping uniqueness checks
func (s *UserStore) Put(user *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = clone(user)
}

// Snapshot returns a copy of the stored row, deleted rows included
func (s *UserStore) Snapshot(id string) *domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return clone(u)
	}
	return nil
}

func (s *UserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	for _, u := range s.users {
		if u.Email == user.Email {
			return repository.ErrDuplicateEmail
		}
		if user.FederationID != nil && u.FederationID != nil &&
			*u.FederationID == *user.FederationID && deref(u.FederationProvider) == deref(user.FederationProvider) {
			return repository.ErrDuplicateFederation
		}
	}
	s.users[user.ID] = clone(user)
	return nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.Email == email })
}

func (s *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.ID == id })
}

func (s *UserStore) GetByFederation(_ context.Context, provider, subject string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool {
		return deref(u.FederationProvider) == provider && deref(u.FederationID) == subject
	})
}

func (s *UserStore) GetByRefreshTokenHash(_ context.Context, hash string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return deref(u.RefreshTokenHash) == hash })
}

func (s *UserStore) UpdateLastLogin(_ context.Context, userID string, at time.Time) error {
	return s.update(userID, repository.ErrNotFound, func(u *domain.User) bool {
		u.LastLoginAt = &at
		return true
	})
}

func (s *UserStore) LinkFederation(_ context.Context, userID, provider, subject string) error {
	s.mu.Lock()
	for _, u := range s.users {
		if deref(u.FederationProvider) == provider && deref(u.FederationID) == subject {
			s.mu.Unlock()
			return repository.ErrDuplicateFederation
		}
	}
	s.mu.Unlock()

	return s.update(userID, repository.ErrConflict, func(u *domain.User) bool {
		if u.FederationID != nil {
			return false
		}
		u.FederationProvider = &provider
		u.FederationID = &subject
		u.IsEmailVerified = true
		return true
	})
}

func (s *UserStore) CompleteRegistration(_ context.Context, userID string, c domain.RoleCompletion) error {
	return s.update(userID, repository.ErrConflict, func(u *domain.User) bool {
		if u.Role != domain.RolePending {
			return false
		}
		u.Role = c.Role
		if c.FirstName != "" {
			u.FirstName = c.FirstName
		}
		if c.LastName != "" {
			u.LastName = c.LastName
		}
		if c.Phone != nil {
			u.Phone = c.Phone
		}
		u.TenantID = c.TenantID
		u.ProfessionalRegistry = c.ProfessionalRegistry
		u.ClinicName = c.ClinicName
		u.ClinicDocument = c.ClinicDocument
		u.TermsAccepted = true
		u.TermsAcceptedAt = &c.TermsAcceptedAt
		u.DisclaimerAccepted = true
		u.DisclaimerAcceptedAt = &c.DisclaimerAcceptedAt
		return true
	})
}

func (s *UserStore) SetRefreshToken(_ context.Context, userID, hash string, expiresAt time.Time) error {
	return s.update(userID, repository.ErrNotFound, func(u *domain.User) bool {
		u.RefreshTokenHash = &hash
		u.RefreshTokenExpiresAt = &expiresAt
		return true
	})
}

func (s *UserStore) RotateRefreshToken(_ context.Context, oldHash, newHash string, expiresAt, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}

	for _, u := range s.users {
		if u.IsDeleted || !u.IsActive || deref(u.RefreshTokenHash) != oldHash {
			continue
		}
		if u.RefreshTokenExpiresAt == nil || !u.RefreshTokenExpiresAt.After(now) {
			continue
		}
		u.RefreshTokenHash = &newHash
		u.RefreshTokenExpiresAt = &expiresAt
		return u.ID, nil
	}
	return "", repository.ErrConflict
}

func (s *UserStore) ClearRefreshToken(_ context.Context, userID string) error {
	err := s.update(userID, nil, func(u *domain.User) bool {
		u.RefreshTokenHash = nil
		u.RefreshTokenExpiresAt = nil
		return true
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	return err
}

func (s *UserStore) SetPasswordResetOTP(_ context.Context, userID, hash string, expiresAt time.Time) error {
	return s.update(userID, repository.ErrNotFound, func(u *domain.User) bool {
		u.PasswordResetOTPHash = &hash
		u.PasswordResetOTPExpiresAt = &expiresAt
		u.PasswordResetOTPAttempts = 0
		return true
	})
}

func (s *UserStore) ReserveOTPAttempt(_ context.Context, userID string, maxAttempts int) (int, error) {
	var attempts int
	err := s.update(userID, repository.ErrConflict, func(u *domain.User) bool {
		if u.PasswordResetOTPAttempts >= maxAttempts {
			return false
		}
		u.PasswordResetOTPAttempts++
		attempts = u.PasswordResetOTPAttempts
		return true
	})
	return attempts, err
}

func (s *UserStore) ReleaseOTPAttempt(_ context.Context, userID string) error {
	return s.update(userID, nil, func(u *domain.User) bool {
		if u.PasswordResetOTPAttempts > 0 {
			u.PasswordResetOTPAttempts--
		}
		return true
	})
}

func (s *UserStore) ResetPasswordWithOTP(_ context.Context, userID, otpHash, passwordHash string, maxAttempts int, now time.Time) error {
	return s.update(userID, repository.ErrConflict, func(u *domain.User) bool {
		if deref(u.PasswordResetOTPHash) != otpHash || u.PasswordResetOTPHash == nil {
			return false
		}
		if u.PasswordResetOTPExpiresAt == nil || !u.PasswordResetOTPExpiresAt.After(now) {
			return false
		}
		if u.PasswordResetOTPAttempts >= maxAttempts {
			return false
		}
		u.PasswordHash = &passwordHash
		clearRecovery(u)
		return true
	})
}

func (s *UserStore) SetPasswordResetToken(_ context.Context, userID, hash string, expiresAt time.Time) error {
	return s.update(userID, repository.ErrNotFound, func(u *domain.User) bool {
		u.PasswordResetToken = &hash
		u.PasswordResetTokenHashed = true
		u.PasswordResetExpiresAt = &expiresAt
		return true
	})
}

func (s *UserStore) ResetPasswordWithToken(_ context.Context, tokenHash, rawToken, passwordHash string, now time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return "", s.Err
	}

	for _, u := range s.users {
		if u.IsDeleted || u.PasswordResetToken == nil {
			continue
		}
		want := tokenHash
		if !u.PasswordResetTokenHashed {
			want = rawToken
		}
		if *u.PasswordResetToken != want {
			continue
		}
		if u.PasswordResetExpiresAt == nil || !u.PasswordResetExpiresAt.After(now) {
			continue
		}
		u.PasswordHash = &passwordHash
		clearRecovery(u)
		return u.ID, nil
	}
	return "", repository.ErrConflict
}

func (s *UserStore) find(match func(*domain.User) bool) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}

	for _, u := range s.users {
		if !u.IsDeleted && match(u) {
			return clone(u), nil
		}
	}
	return nil, repository.ErrNotFound
}

// update applies fn to the live row; fn returning false means the WHERE clause missed
func (s *UserStore) update(userID string, miss error, fn func(*domain.User) bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}

	u, ok := s.users[userID]
	if !ok || u.IsDeleted {
		return repository.ErrNotFound
	}
	if !fn(u) {
		return miss
	}
	return nil
}

func clearRecovery(u *domain.User) {
	u.PasswordResetOTPHash = nil
	u.PasswordResetOTPExpiresAt = nil
	u.PasswordResetOTPAttempts = 0
	u.PasswordResetToken = nil
	u.PasswordResetTokenHashed = false
	u.PasswordResetExpiresAt = nil
	u.RefreshTokenHash = nil
	u.RefreshTokenExpiresAt = nil
}

func clone(u *domain.User) *domain.User {
	c := *u
	return &c
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
