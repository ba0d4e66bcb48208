package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/repository"
	"go.uber.org/zap"
)

// RoleProfile is the role-specific data collected at sign-up or role completion
type RoleProfile struct {
	Role                 string
	FirstName            string
	LastName             string
	Phone                *string
	ProfessionalRegistry *string
	ClinicName           *string
	ClinicDocument       *string
	TermsAccepted        bool
	DisclaimerAccepted   bool
}

// validate checks the role and the fields it requires
func (p RoleProfile) validate() (domain.Role, error) {
	role := domain.Role(strings.TrimSpace(p.Role))
	if !role.SelfAssignable() {
		return "", domain.InvalidInput("role must be one of patient, nurse, clinic_manager")
	}

	switch role {
	case domain.RoleNurse:
		if blank(p.ProfessionalRegistry) {
			return "", domain.InvalidInput("professional_registry is required for nurses")
		}
	case domain.RoleClinicManager:
		if blank(p.ClinicName) || blank(p.ClinicDocument) {
			return "", domain.InvalidInput("clinic_name and clinic_document are required for clinic managers")
		}
	}

	if !p.TermsAccepted || !p.DisclaimerAccepted {
		return "", domain.InvalidInput("terms and disclaimer must both be accepted")
	}
	return role, nil
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// FederatedIdentityService maps verified external profiles onto local accounts
type FederatedIdentityService struct {
	users  repository.UserRepository
	clock  clockwork.Clock
	logger *zap.Logger
}

func NewFederatedIdentityService(users repository.UserRepository, clock clockwork.Clock, logger *zap.Logger) *FederatedIdentityService {
	return &FederatedIdentityService{users: users, clock: clock, logger: logger}
}

// Resolve finds or creates the local account for profile. The bool reports
// whether a new pending account was created.
func (s *FederatedIdentityService) Resolve(ctx context.Context, profile *domain.ExternalProfile) (*domain.User, bool, error) {
	if profile == nil || profile.Provider == "" || profile.Subject == "" || profile.Email == "" {
		return nil, false, domain.InvalidInput("incomplete external profile")
	}
	if !profile.EmailVerified {
		return nil, false, domain.InvalidInput("the provider has not verified this email address")
	}
	email := strings.ToLower(strings.TrimSpace(profile.Email))

	user, err := s.users.GetByFederation(ctx, profile.Provider, profile.Subject)
	switch {
	case err == nil:
		return activeOnly(user, false)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, fmt.Errorf("failed to get user by federation: %w", err)
	}

	user, err = s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return s.link(ctx, user, profile)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, false, fmt.Errorf("failed to get user by email: %w", err)
	}

	return s.createPending(ctx, email, profile)
}

func (s *FederatedIdentityService) link(ctx context.Context, user *domain.User, profile *domain.ExternalProfile) (*domain.User, bool, error) {
	if user.FederationID != nil {
		// same email, different external identity
		return nil, false, domain.ErrEmailAlreadyRegistered
	}
	if !user.IsActive {
		return nil, false, domain.ErrAccountInactive
	}

	err := s.users.LinkFederation(ctx, user.ID, profile.Provider, profile.Subject)
	if err != nil {
		if errors.Is(err, repository.ErrConflict) || errors.Is(err, repository.ErrDuplicateFederation) {
			return nil, false, domain.ErrEmailAlreadyRegistered
		}
		return nil, false, fmt.Errorf("failed to link federation: %w", err)
	}

	user.FederationProvider = &profile.Provider
	user.FederationID = &profile.Subject
	user.IsEmailVerified = true

	s.logger.Info("linked external identity", zap.String("user_id", user.ID), zap.String("provider", profile.Provider))
	return user, false, nil
}

func (s *FederatedIdentityService) createPending(ctx context.Context, email string, profile *domain.ExternalProfile) (*domain.User, bool, error) {
	now := s.clock.Now()
	user := &domain.User{
		ID:                 uuid.NewString(),
		Email:              email,
		Role:               domain.RolePending,
		FirstName:          profile.FirstName,
		LastName:           profile.LastName,
		IsActive:           true,
		IsEmailVerified:    true,
		FederationProvider: &profile.Provider,
		FederationID:       &profile.Subject,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateFederation):
			// a concurrent first sign-in for the same identity won
			existing, getErr := s.users.GetByFederation(ctx, profile.Provider, profile.Subject)
			if getErr != nil {
				return nil, false, fmt.Errorf("failed to get user by federation: %w", getErr)
			}
			return activeOnly(existing, false)
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, false, domain.ErrEmailAlreadyRegistered
		}
		return nil, false, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("created pending account", zap.String("user_id", user.ID), zap.String("provider", profile.Provider))
	return user, true, nil
}

// CompleteRegistration moves a pending account to its chosen role
func (s *FederatedIdentityService) CompleteRegistration(ctx context.Context, userID string, profile RoleProfile) (*domain.User, error) {
	role, err := profile.validate()
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !user.IsPending() {
		return nil, domain.InvalidInput("registration is already complete")
	}

	now := s.clock.Now()
	completion := domain.RoleCompletion{
		Role:                 role,
		FirstName:            strings.TrimSpace(profile.FirstName),
		LastName:             strings.TrimSpace(profile.LastName),
		Phone:                profile.Phone,
		TermsAcceptedAt:      now,
		DisclaimerAcceptedAt: now,
	}
	switch role {
	case domain.RoleNurse:
		completion.ProfessionalRegistry = profile.ProfessionalRegistry
	case domain.RoleClinicManager:
		tenant := uuid.NewString()
		completion.TenantID = &tenant
		completion.ClinicName = profile.ClinicName
		completion.ClinicDocument = profile.ClinicDocument
	}

	if err := s.users.CompleteRegistration(ctx, user.ID, completion); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.InvalidInput("registration is already complete")
		}
		return nil, fmt.Errorf("failed to complete registration: %w", err)
	}

	updated, err := s.users.GetByID(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload user: %w", err)
	}

	s.logger.Info("registration completed", zap.String("user_id", user.ID), zap.String("role", string(role)))
	return updated, nil
}

func activeOnly(user *domain.User, created bool) (*domain.User, bool, error) {
	if !user.IsActive {
		return nil, false, domain.ErrAccountInactive
	}
	return user, created, nil
}
