package domain

import "time"

// Role is the marketplace role a user acts under
type Role string

const (
	RolePlatformAdmin Role = "platform_admin"
	RolePatient       Role = "patient"
	RoleNurse         Role = "nurse"
	RoleClinicManager Role = "clinic_manager"

	// RolePending marks a federated account that has not picked a role yet
	RolePending Role = "pending"
)

// Valid reports whether r is a known role, pending included
func (r Role) Valid() bool {
	switch r {
	case RolePlatformAdmin, RolePatient, RoleNurse, RoleClinicManager, RolePending:
		return true
	}
	return false
}

// SelfAssignable reports whether a user may choose r at sign-up.
// Platform admins are provisioned out of band.
func (r Role) SelfAssignable() bool {
	switch r {
	case RolePatient, RoleNurse, RoleClinicManager:
		return true
	}
	return false
}

// User represents a marketplace account
type User struct {
	ID              string  `json:"id" db:"id"`
	Email           string  `json:"email" db:"email"`
	PasswordHash    *string `json:"-" db:"password_hash"`
	Role            Role    `json:"role" db:"role"`
	FirstName       string  `json:"first_name" db:"first_name"`
	LastName        string  `json:"last_name" db:"last_name"`
	Phone           *string `json:"phone" db:"phone"`
	TenantID        *string `json:"tenant_id" db:"tenant_id"`
	IsActive        bool    `json:"is_active" db:"is_active"`
	IsDeleted       bool    `json:"-" db:"is_deleted"`
	IsEmailVerified bool    `json:"is_email_verified" db:"is_email_verified"`

	FederationProvider *string `json:"-" db:"federation_provider"`
	FederationID       *string `json:"-" db:"federation_id"`

	// legacy reset-link flow
	PasswordResetToken       *string    `json:"-" db:"password_reset_token"`
	// PasswordResetTokenHashed is false only for tokens stored in the clear by older releases
	PasswordResetTokenHashed bool       `json:"-" db:"password_reset_token_hashed"`
	PasswordResetExpiresAt   *time.Time `json:"-" db:"password_reset_expires_at"`

	PasswordResetOTPHash      *string    `json:"-" db:"password_reset_otp_hash"`
	PasswordResetOTPExpiresAt *time.Time `json:"-" db:"password_reset_otp_expires_at"`
	PasswordResetOTPAttempts  int        `json:"-" db:"password_reset_otp_attempts"`

	RefreshTokenHash      *string    `json:"-" db:"refresh_token_hash"`
	RefreshTokenExpiresAt *time.Time `json:"-" db:"refresh_token_expires_at"`

	ProfessionalRegistry *string `json:"professional_registry" db:"professional_registry"`
	ClinicName           *string `json:"clinic_name" db:"clinic_name"`
	ClinicDocument       *string `json:"clinic_document" db:"clinic_document"`

	TermsAccepted        bool       `json:"terms_accepted" db:"terms_accepted"`
	TermsAcceptedAt      *time.Time `json:"terms_accepted_at" db:"terms_accepted_at"`
	DisclaimerAccepted   bool       `json:"disclaimer_accepted" db:"disclaimer_accepted"`
	DisclaimerAcceptedAt *time.Time `json:"disclaimer_accepted_at" db:"disclaimer_accepted_at"`

	LastLoginAt *time.Time `json:"last_login_at" db:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
}

// HasPassword reports whether the account can log in with a password
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// IsPending reports whether the account still has to pick a role
func (u *User) IsPending() bool {
	return u.Role == RolePending
}

// Tenant returns the clinic id or an empty string
func (u *User) Tenant() string {
	if u.TenantID == nil {
		return ""
	}
	return *u.TenantID
}

// RoleCompletion is the set of fields written when a pending account picks its role
type RoleCompletion struct {
	Role                 Role
	FirstName            string
	LastName             string
	Phone                *string
	TenantID             *string
	ProfessionalRegistry *string
	ClinicName           *string
	ClinicDocument       *string
	TermsAcceptedAt      time.Time
	DisclaimerAcceptedAt time.Time
}

// ExternalProfile is an identity asserted by an OAuth provider
type ExternalProfile struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	FirstName     string
	LastName      string
	Picture       string
}
