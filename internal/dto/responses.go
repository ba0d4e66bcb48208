package dto

// AuthResponse represents an authentication response
type AuthResponse struct {
	AccessToken      string   `json:"access_token"`
	RefreshToken     string   `json:"refresh_token"`
	TokenType        string   `json:"token_type"`
	ExpiresIn        int      `json:"expires_in"`
	RefreshExpiresIn int      `json:"refresh_expires_in"`
	User             UserInfo `json:"user"`
}

// GoogleAuthResponse is an AuthResponse plus the onboarding hints for federated sign-in
type GoogleAuthResponse struct {
	AuthResponse
	IsNewUser             bool `json:"isNewUser"`
	RequiresRoleSelection bool `json:"requiresRoleSelection"`
}

// UserInfo represents user information in response
type UserInfo struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Role      string  `json:"role"`
	TenantID  *string `json:"tenantId,omitempty"`
}

// UserResponse represents a user response
type UserResponse struct {
	ID                    string  `json:"id"`
	Email                 string  `json:"email"`
	FirstName             string  `json:"first_name"`
	LastName              string  `json:"last_name"`
	Role                  string  `json:"role"`
	TenantID              *string `json:"tenant_id,omitempty"`
	Phone                 *string `json:"phone,omitempty"`
	IsEmailVerified       bool    `json:"is_email_verified"`
	RequiresRoleSelection bool    `json:"requires_role_selection"`
	CreatedAt             string  `json:"created_at"`
	UpdatedAt             string  `json:"updated_at"`
	LastLoginAt           *string `json:"last_login_at"`
}

// VerifyOTPResponse answers a code check
type VerifyOTPResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string `json:"message"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}
