package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/repository"
	"github.com/prperemyshlev/care-auth/internal/utils"
	"github.com/prperemyshlev/care-auth/pkg/observability"
	"go.uber.org/zap"
)

const (
	otpDigits       = 6
	resetTokenBytes = 32

	PlatformWeb    = "web"
	PlatformMobile = "mobile"
)

// RecoveryOptions configures both password recovery flows
type RecoveryOptions struct {
	OTPTTL         time.Duration
	OTPMaxAttempts int
	ResetTokenTTL  time.Duration
	ResetURLWeb    string
	ResetURLMobile string
	BCryptCost     int
}

// RecoveryService implements OTP password recovery and the legacy reset link.
// Requests for unknown, inactive or deleted accounts succeed silently.
type RecoveryService struct {
	users    repository.UserRepository
	notifier Notifier
	opts     RecoveryOptions
	clock    clockwork.Clock
	logger   *zap.Logger
	metrics  *observability.AuthMetrics
}

func NewRecoveryService(
	users repository.UserRepository,
	notifier Notifier,
	opts RecoveryOptions,
	clock clockwork.Clock,
	logger *zap.Logger,
	metrics *observability.AuthMetrics,
) *RecoveryService {
	return &RecoveryService{
		users:    users,
		notifier: notifier,
		opts:     opts,
		clock:    clock,
		logger:   logger,
		metrics:  metrics,
	}
}

// RequestOTP stores a fresh code for email and queues it for delivery
func (s *RecoveryService) RequestOTP(ctx context.Context, email, platform string) error {
	user, err := s.recoverableUser(ctx, email)
	if err != nil || user == nil {
		return err
	}

	code, err := utils.GenerateNumericCode(otpDigits)
	if err != nil {
		return err
	}

	expiresAt := s.clock.Now().Add(s.opts.OTPTTL)
	if err := s.users.SetPasswordResetOTP(ctx, user.ID, utils.HashToken(code), expiresAt); err != nil {
		return fmt.Errorf("failed to store reset code: %w", err)
	}
	s.metrics.OTPRequested(ctx)

	if err := s.notifier.SendPasswordResetOTP(ctx, user.Email, code, s.opts.OTPTTL); err != nil {
		s.logger.Error("failed to dispatch reset code",
			zap.String("email", utils.MaskIdentifier(user.Email)),
			zap.String("platform", platform),
			zap.Error(err))
	}
	return nil
}

// VerifyOTP checks a code without consuming it
func (s *RecoveryService) VerifyOTP(ctx context.Context, email, code string) error {
	user, err := s.otpUser(ctx, email, code)
	if err != nil {
		return err
	}
	return s.checkOTP(ctx, user, code)
}

// ResetPasswordWithOTP consumes the code and sets the new password. The final
// write only succeeds while the code is still current, so a code works once.
func (s *RecoveryService) ResetPasswordWithOTP(ctx context.Context, email, code, newPassword string) error {
	if err := validateNewPassword(newPassword); err != nil {
		return err
	}

	user, err := s.otpUser(ctx, email, code)
	if err != nil {
		return err
	}
	if err := s.checkOTP(ctx, user, code); err != nil {
		return err
	}

	passwordHash, err := utils.HashPassword(newPassword, s.opts.BCryptCost)
	if err != nil {
		return err
	}

	err = s.users.ResetPasswordWithOTP(ctx, user.ID, utils.HashToken(code), passwordHash, s.opts.OTPMaxAttempts, s.clock.Now())
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.ErrOtpInvalid
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}

	s.logger.Info("password reset with code", zap.String("user_id", user.ID))
	return nil
}

// ForgotPassword issues a reset-link token and mails a platform-specific link
func (s *RecoveryService) ForgotPassword(ctx context.Context, email, platform string) error {
	user, err := s.recoverableUser(ctx, email)
	if err != nil || user == nil {
		return err
	}

	token, err := utils.GenerateOpaqueToken(resetTokenBytes)
	if err != nil {
		return err
	}

	expiresAt := s.clock.Now().Add(s.opts.ResetTokenTTL)
	if err := s.users.SetPasswordResetToken(ctx, user.ID, utils.HashToken(token), expiresAt); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	link, err := s.resetLink(platform, token)
	if err != nil {
		return err
	}

	if err := s.notifier.SendPasswordResetLink(ctx, user.Email, link, s.opts.ResetTokenTTL); err != nil {
		s.logger.Error("failed to dispatch reset link",
			zap.String("email", utils.MaskIdentifier(user.Email)),
			zap.Error(err))
	}
	return nil
}

// ResetPassword consumes a reset-link token
func (s *RecoveryService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrTokenInvalid
	}
	if err := validateNewPassword(newPassword); err != nil {
		return err
	}

	passwordHash, err := utils.HashPassword(newPassword, s.opts.BCryptCost)
	if err != nil {
		return err
	}

	userID, err := s.users.ResetPasswordWithToken(ctx, utils.HashToken(token), token, passwordHash, s.clock.Now())
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.ErrTokenInvalid
		}
		return fmt.Errorf("failed to reset password: %w", err)
	}

	s.logger.Info("password reset with link", zap.String("user_id", userID))
	return nil
}

// recoverableUser returns nil without error for accounts that must not learn
// anything from the response.
func (s *RecoveryService) recoverableUser(ctx context.Context, email string) (*domain.User, error) {
	email = utils.SanitizeEmail(email)
	if !utils.ValidateEmail(email) {
		return nil, domain.InvalidInput("invalid email format")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.logger.Debug("recovery requested for unknown email", zap.String("email", utils.MaskIdentifier(email)))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive {
		s.logger.Debug("recovery requested for inactive account", zap.String("user_id", user.ID))
		return nil, nil
	}
	return user, nil
}

// otpUser loads the account a code is checked against. Unknown accounts and
// malformed codes read as a wrong code.
func (s *RecoveryService) otpUser(ctx context.Context, email, code string) (*domain.User, error) {
	if !utils.ValidateOTPFormat(code) {
		return nil, domain.ErrOtpInvalid
	}

	user, err := s.users.GetByEmail(ctx, utils.SanitizeEmail(email))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrOtpInvalid
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsActive {
		return nil, domain.ErrOtpInvalid
	}
	return user, nil
}

// checkOTP claims an attempt before comparing, so concurrent guesses cannot
// get past the cap. A correct code hands its claim back.
func (s *RecoveryService) checkOTP(ctx context.Context, user *domain.User, code string) error {
	attempts, err := s.users.ReserveOTPAttempt(ctx, user.ID, s.opts.OTPMaxAttempts)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.ErrOtpAttemptsExceeded
		}
		return fmt.Errorf("failed to count code attempt: %w", err)
	}

	if user.PasswordResetOTPHash == nil || !utils.EqualHashes(utils.HashToken(code), *user.PasswordResetOTPHash) {
		if attempts >= s.opts.OTPMaxAttempts {
			s.logger.Warn("reset code attempts exhausted", zap.String("user_id", user.ID))
		}
		return domain.ErrOtpInvalid
	}

	if err := s.users.ReleaseOTPAttempt(ctx, user.ID); err != nil {
		s.logger.Error("failed to release code attempt", zap.String("user_id", user.ID), zap.Error(err))
	}

	if user.PasswordResetOTPExpiresAt == nil || !s.clock.Now().Before(*user.PasswordResetOTPExpiresAt) {
		return domain.ErrOtpExpired
	}
	return nil
}

func (s *RecoveryService) resetLink(platform, token string) (string, error) {
	base := s.opts.ResetURLWeb
	if platform == PlatformMobile {
		base = s.opts.ResetURLMobile
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid reset url %q: %w", base, err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func validateNewPassword(password string) error {
	if failures := utils.PasswordFailures(password); len(failures) > 0 {
		return domain.InvalidInput("%s", strings.Join(failures, "; "))
	}
	return nil
}
