package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/dto"
	"github.com/prperemyshlev/care-auth/internal/repository"
	"github.com/prperemyshlev/care-auth/internal/utils"
	"github.com/prperemyshlev/care-auth/pkg/observability"
	"go.uber.org/zap"
)

// Deps groups the collaborators of the auth facade
type Deps struct {
	Users      repository.UserRepository
	Tokens     *TokenService
	Guard      *LockoutGuard
	Recovery   *RecoveryService
	Federated  *FederatedIdentityService
	BCryptCost int
	Clock      clockwork.Clock
	Logger     *zap.Logger
	Metrics    *observability.AuthMetrics
}

// authService implements AuthService interface
type authService struct {
	Deps
	// dummyHash is compared against when the email is unknown so both
	// branches of a failed login cost one bcrypt comparison
	dummyHash string
}

// NewAuthService creates a new auth service
func NewAuthService(deps Deps) (AuthService, error) {
	dummy, err := utils.HashPassword(uuid.NewString(), deps.BCryptCost)
	if err != nil {
		return nil, err
	}
	return &authService{Deps: deps, dummyHash: dummy}, nil
}

// Register creates a password account and signs it in
func (s *authService) Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error) {
	email := utils.SanitizeEmail(req.Email)
	if !utils.ValidateEmail(email) {
		return nil, domain.InvalidInput("invalid email format")
	}
	if err := validateNewPassword(req.Password); err != nil {
		return nil, err
	}

	profile := RoleProfile{
		Role:                 req.Role,
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		Phone:                req.Phone,
		ProfessionalRegistry: req.ProfessionalRegistry,
		ClinicName:           req.ClinicName,
		ClinicDocument:       req.ClinicDocument,
		TermsAccepted:        req.TermsAccepted,
		DisclaimerAccepted:   req.DisclaimerAccepted,
	}
	role, err := profile.validate()
	if err != nil {
		return nil, err
	}

	_, err = s.Users.GetByEmail(ctx, email)
	if err == nil {
		return nil, domain.ErrEmailAlreadyRegistered
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check user existence: %w", err)
	}

	passwordHash, err := utils.HashPassword(req.Password, s.BCryptCost)
	if err != nil {
		return nil, err
	}

	now := s.Clock.Now()
	user := &domain.User{
		ID:                   uuid.NewString(),
		Email:                email,
		PasswordHash:         &passwordHash,
		Role:                 role,
		FirstName:            strings.TrimSpace(req.FirstName),
		LastName:             strings.TrimSpace(req.LastName),
		Phone:                req.Phone,
		IsActive:             true,
		TermsAccepted:        true,
		TermsAcceptedAt:      &now,
		DisclaimerAccepted:   true,
		DisclaimerAcceptedAt: &now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	switch role {
	case domain.RoleNurse:
		user.ProfessionalRegistry = req.ProfessionalRegistry
	case domain.RoleClinicManager:
		tenant := uuid.NewString()
		user.TenantID = &tenant
		user.ClinicName = req.ClinicName
		user.ClinicDocument = req.ClinicDocument
	}

	if err := s.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, domain.ErrEmailAlreadyRegistered
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.Logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return s.signIn(ctx, user)
}

// Login authenticates with email and password behind the lockout guard
func (s *authService) Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error) {
	email := utils.SanitizeEmail(req.Email)
	if email == "" {
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.Guard.Check(ctx, email); err != nil {
		return nil, err
	}

	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	switch {
	case user == nil:
		utils.CheckPasswordHash(req.Password, s.dummyHash)
		return nil, s.loginFailed(ctx, email, "unknown_email")
	case !user.HasPassword():
		utils.CheckPasswordHash(req.Password, s.dummyHash)
		return nil, s.loginFailed(ctx, email, "no_password")
	case !utils.CheckPasswordHash(req.Password, *user.PasswordHash):
		return nil, s.loginFailed(ctx, email, "wrong_password")
	}

	// only reported after a correct password
	if !user.IsActive {
		return nil, domain.ErrAccountInactive
	}

	// guard logs its own failures; a stale record only delays the next lock
	_ = s.Guard.RecordSuccessfulLogin(ctx, email)

	if err := s.Users.UpdateLastLogin(ctx, user.ID, s.Clock.Now()); err != nil {
		s.Logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	}

	return s.signIn(ctx, user)
}

func (s *authService) loginFailed(ctx context.Context, email, reason string) error {
	s.Metrics.LoginFailed(ctx, reason)

	result, err := s.Guard.RecordFailedAttempt(ctx, email)
	if err != nil {
		return domain.ErrInvalidCredentials
	}
	if result.Locked {
		return domain.AccountLocked(time.Duration(result.LockoutSeconds) * time.Second)
	}
	return domain.InvalidCredentials(result.AttemptsRemaining)
}

// Refresh rotates the refresh token
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*dto.AuthResponse, error) {
	user, pair, err := s.Tokens.Rotate(ctx, strings.TrimSpace(refreshToken))
	if err != nil {
		s.Metrics.TokenRefreshed(ctx, "rejected")
		return nil, err
	}
	s.Metrics.TokenRefreshed(ctx, "rotated")
	return newAuthResponse(user, pair), nil
}

// Logout revokes the refresh token; access tokens expire on their own
func (s *authService) Logout(ctx context.Context, userID string) error {
	return s.Tokens.Revoke(ctx, userID)
}

func (s *authService) ForgotPassword(ctx context.Context, req *dto.ForgotPasswordRequest) error {
	return s.Recovery.ForgotPassword(ctx, req.Email, req.Platform)
}

func (s *authService) ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) error {
	return s.Recovery.ResetPassword(ctx, req.Token, req.NewPassword)
}

func (s *authService) RequestPasswordOTP(ctx context.Context, req *dto.RequestOTPRequest) error {
	return s.Recovery.RequestOTP(ctx, req.Email, req.Platform)
}

func (s *authService) VerifyPasswordOTP(ctx context.Context, req *dto.VerifyOTPRequest) (*dto.VerifyOTPResponse, error) {
	if err := s.Recovery.VerifyOTP(ctx, req.Email, req.Code); err != nil {
		return nil, err
	}
	return &dto.VerifyOTPResponse{Valid: true, Message: "code is valid"}, nil
}

func (s *authService) ResetPasswordWithOTP(ctx context.Context, req *dto.ResetPasswordWithOTPRequest) error {
	return s.Recovery.ResetPasswordWithOTP(ctx, req.Email, req.Code, req.NewPassword)
}

// GoogleLogin signs in a verified Google profile, creating a pending account on first use
func (s *authService) GoogleLogin(ctx context.Context, profile *domain.ExternalProfile) (*dto.GoogleAuthResponse, error) {
	user, created, err := s.Federated.Resolve(ctx, profile)
	if err != nil {
		return nil, err
	}

	if !created {
		if err := s.Users.UpdateLastLogin(ctx, user.ID, s.Clock.Now()); err != nil {
			s.Logger.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	resp, err := s.signIn(ctx, user)
	if err != nil {
		return nil, err
	}

	return &dto.GoogleAuthResponse{
		AuthResponse:          *resp,
		IsNewUser:             created,
		RequiresRoleSelection: user.IsPending(),
	}, nil
}

// CompleteGoogleRegistration gives a pending account its role and reissues tokens carrying it
func (s *authService) CompleteGoogleRegistration(ctx context.Context, userID string, req *dto.CompleteRegistrationRequest) (*dto.AuthResponse, error) {
	user, err := s.Federated.CompleteRegistration(ctx, userID, RoleProfile{
		Role:                 req.Role,
		FirstName:            req.FirstName,
		LastName:             req.LastName,
		Phone:                req.Phone,
		ProfessionalRegistry: req.ProfessionalRegistry,
		ClinicName:           req.ClinicName,
		ClinicDocument:       req.ClinicDocument,
		TermsAccepted:        req.TermsAccepted,
		DisclaimerAccepted:   req.DisclaimerAccepted,
	})
	if err != nil {
		return nil, err
	}
	return s.signIn(ctx, user)
}

// ValidateToken validates an access token
func (s *authService) ValidateToken(_ context.Context, token string) (*domain.TokenClaims, error) {
	return s.Tokens.ValidateAccessToken(token)
}

// GetUser returns the profile of the authenticated user
func (s *authService) GetUser(ctx context.Context, userID string) (*dto.UserResponse, error) {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return newUserResponse(user), nil
}

// UnlockAccount clears the lockout record of an email or IP
func (s *authService) UnlockAccount(ctx context.Context, identifier string) error {
	if strings.TrimSpace(identifier) == "" {
		return domain.InvalidInput("identifier is required")
	}
	return s.Guard.Unlock(ctx, identifier)
}

func (s *authService) signIn(ctx context.Context, user *domain.User) (*dto.AuthResponse, error) {
	pair, err := s.Tokens.IssuePair(ctx, user)
	if err != nil {
		return nil, err
	}
	return newAuthResponse(user, pair), nil
}
