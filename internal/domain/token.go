package domain

import "time"

// ClaimsVersion is bumped whenever the access token payload changes shape
const ClaimsVersion = 1

// TokenClaims represents the validated content of an access token
type TokenClaims struct {
	Version   int
	TokenID   string
	UserID    string
	Email     string
	Role      Role
	TenantID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenPair represents a pair of access and refresh tokens
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	TokenType        string
	ExpiresIn        int
	RefreshExpiresIn int
}
