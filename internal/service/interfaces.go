package service

import (
	"context"
	"time"

	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/dto"
)

// AuthService is the facade the HTTP layer calls
type AuthService interface {
	Register(ctx context.Context, req *dto.RegisterRequest) (*dto.AuthResponse, error)
	Login(ctx context.Context, req *dto.LoginRequest) (*dto.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*dto.AuthResponse, error)
	Logout(ctx context.Context, userID string) error

	ForgotPassword(ctx context.Context, req *dto.ForgotPasswordRequest) error
	ResetPassword(ctx context.Context, req *dto.ResetPasswordRequest) error
	RequestPasswordOTP(ctx context.Context, req *dto.RequestOTPRequest) error
	VerifyPasswordOTP(ctx context.Context, req *dto.VerifyOTPRequest) (*dto.VerifyOTPResponse, error)
	ResetPasswordWithOTP(ctx context.Context, req *dto.ResetPasswordWithOTPRequest) error

	GoogleLogin(ctx context.Context, profile *domain.ExternalProfile) (*dto.GoogleAuthResponse, error)
	CompleteGoogleRegistration(ctx context.Context, userID string, req *dto.CompleteRegistrationRequest) (*dto.AuthResponse, error)

	ValidateToken(ctx context.Context, token string) (*domain.TokenClaims, error)
	GetUser(ctx context.Context, userID string) (*dto.UserResponse, error)
	UnlockAccount(ctx context.Context, identifier string) error
}

// Notifier delivers recovery secrets to the account owner.
// Implementations queue and return; callers log failures and carry on.
type Notifier interface {
	SendPasswordResetOTP(ctx context.Context, to, code string, expiresIn time.Duration) error
	SendPasswordResetLink(ctx context.Context, to, link string, expiresIn time.Duration) error
}
