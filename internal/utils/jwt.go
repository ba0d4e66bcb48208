package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/prperemyshlev/care-auth/internal/domain"
)

// accessClaims is the wire form of domain.TokenClaims
type accessClaims struct {
	Version  int         `json:"ver"`
	Email    string      `json:"email"`
	Role     domain.Role `json:"role"`
	TenantID string      `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager manages JWT token operations
type JWTManager struct {
	secret            []byte
	issuer            string
	accessTokenExpiry time.Duration
	clock             clockwork.Clock
}

// NewJWTManager creates a new JWT manager
func NewJWTManager(secret, issuer string, accessTokenExpiry time.Duration, clock clockwork.Clock) *JWTManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &JWTManager{
		secret:            []byte(secret),
		issuer:            issuer,
		accessTokenExpiry: accessTokenExpiry,
		clock:             clock,
	}
}

// GenerateAccessToken signs an access token for the given subject.
// Version, token id and timestamps are filled in here.
func (j *JWTManager) GenerateAccessToken(userID, email string, role domain.Role, tenantID string) (string, error) {
	now := j.clock.Now()

	claims := &accessClaims{
		Version:  domain.ClaimsVersion,
		Email:    email,
		Role:     role,
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			Issuer:    j.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.accessTokenExpiry)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateToken verifies signature, issuer, version and expiry.
// It returns domain.ErrTokenExpired or domain.ErrTokenInvalid on failure.
func (j *JWTManager) ValidateToken(tokenString string) (*domain.TokenClaims, error) {
	claims := &accessClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return j.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(j.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(j.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}

	if !token.Valid || claims.Version != domain.ClaimsVersion || claims.Subject == "" || !claims.Role.Valid() {
		return nil, domain.ErrTokenInvalid
	}

	out := &domain.TokenClaims{
		Version:  claims.Version,
		TokenID:  claims.ID,
		UserID:   claims.Subject,
		Email:    claims.Email,
		Role:     claims.Role,
		TenantID: claims.TenantID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}

	return out, nil
}

// GetAccessTokenExpiry returns the access token expiry duration in seconds
func (j *JWTManager) GetAccessTokenExpiry() int {
	return int(j.accessTokenExpiry.Seconds())
}
