package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/repository"
	"github.com/prperemyshlev/care-auth/internal/utils"
)

const refreshTokenBytes = 32

// TokenService issues access tokens and manages the single refresh slot per user
type TokenService struct {
	users      repository.UserRepository
	jwt        *utils.JWTManager
	refreshTTL time.Duration
	clock      clockwork.Clock
}

func NewTokenService(users repository.UserRepository, jwt *utils.JWTManager, refreshTTL time.Duration, clock clockwork.Clock) *TokenService {
	return &TokenService{
		users:      users,
		jwt:        jwt,
		refreshTTL: refreshTTL,
		clock:      clock,
	}
}

// IssuePair signs an access token and replaces the user's refresh token
func (s *TokenService) IssuePair(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	refreshToken, err := utils.GenerateOpaqueToken(refreshTokenBytes)
	if err != nil {
		return nil, err
	}

	expiresAt := s.clock.Now().Add(s.refreshTTL)
	if err := s.users.SetRefreshToken(ctx, user.ID, utils.HashToken(refreshToken), expiresAt); err != nil {
		return nil, fmt.Errorf("failed to save refresh token: %w", err)
	}

	return s.pair(user, refreshToken)
}

// Rotate exchanges a refresh token for a new pair. The presented token stops
// working as soon as this returns, and of two concurrent rotations only one wins.
func (s *TokenService) Rotate(ctx context.Context, refreshToken string) (*domain.User, *domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, nil, domain.ErrTokenInvalid
	}

	oldHash := utils.HashToken(refreshToken)
	user, err := s.users.GetByRefreshTokenHash(ctx, oldHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, domain.ErrTokenInvalid
		}
		return nil, nil, fmt.Errorf("failed to look up refresh token: %w", err)
	}

	now := s.clock.Now()
	if user.RefreshTokenExpiresAt == nil || !now.Before(*user.RefreshTokenExpiresAt) {
		return nil, nil, domain.ErrTokenInvalid
	}
	if !user.IsActive {
		return nil, nil, domain.ErrAccountInactive
	}

	newToken, err := utils.GenerateOpaqueToken(refreshTokenBytes)
	if err != nil {
		return nil, nil, err
	}

	if _, err := s.users.RotateRefreshToken(ctx, oldHash, utils.HashToken(newToken), now.Add(s.refreshTTL), now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, nil, domain.ErrTokenInvalid
		}
		return nil, nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	pair, err := s.pair(user, newToken)
	if err != nil {
		return nil, nil, err
	}
	return user, pair, nil
}

// Revoke clears the refresh slot so the current refresh token stops working
func (s *TokenService) Revoke(ctx context.Context, userID string) error {
	if err := s.users.ClearRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

// ValidateAccessToken checks an access token without touching any store
func (s *TokenService) ValidateAccessToken(token string) (*domain.TokenClaims, error) {
	return s.jwt.ValidateToken(token)
}

func (s *TokenService) pair(user *domain.User, refreshToken string) (*domain.TokenPair, error) {
	accessToken, err := s.jwt.GenerateAccessToken(user.ID, user.Email, user.Role, user.Tenant())
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		TokenType:        "Bearer",
		ExpiresIn:        s.jwt.GetAccessTokenExpiry(),
		RefreshExpiresIn: int(s.refreshTTL.Seconds()),
	}, nil
}
