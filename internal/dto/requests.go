package dto

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email                string  `json:"email" binding:"required,email"`
	Password             string  `json:"password" binding:"required"`
	Role                 string  `json:"role" binding:"required"`
	FirstName            string  `json:"first_name" binding:"required"`
	LastName             string  `json:"last_name" binding:"required"`
	Phone                *string `json:"phone"`
	ProfessionalRegistry *string `json:"professional_registry"`
	ClinicName           *string `json:"clinic_name"`
	ClinicDocument       *string `json:"clinic_document"`
	TermsAccepted        bool    `json:"terms_accepted"`
	DisclaimerAccepted   bool    `json:"disclaimer_accepted"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RefreshRequest carries the refresh token when it is not sent as a cookie
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ForgotPasswordRequest starts the reset-link flow
type ForgotPasswordRequest struct {
	Email    string `json:"email" binding:"required"`
	Platform string `json:"platform"`
}

// ResetPasswordRequest finishes the reset-link flow
type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// RequestOTPRequest asks for a password reset code
type RequestOTPRequest struct {
	Email    string `json:"email" binding:"required"`
	Platform string `json:"platform"`
}

// VerifyOTPRequest checks a password reset code without consuming it
type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

// ResetPasswordWithOTPRequest consumes a code and sets a new password
type ResetPasswordWithOTPRequest struct {
	Email       string `json:"email" binding:"required"`
	Code        string `json:"code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// GoogleTokenRequest carries an ID token obtained by a mobile client
type GoogleTokenRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

// CompleteRegistrationRequest picks the role of a pending federated account
type CompleteRegistrationRequest struct {
	Role                 string  `json:"role" binding:"required"`
	FirstName            string  `json:"first_name"`
	LastName             string  `json:"last_name"`
	Phone                *string `json:"phone"`
	ProfessionalRegistry *string `json:"professional_registry"`
	ClinicName           *string `json:"clinic_name"`
	ClinicDocument       *string `json:"clinic_document"`
	TermsAccepted        bool    `json:"terms_accepted"`
	DisclaimerAccepted   bool    `json:"disclaimer_accepted"`
}
