// Package oauth turns third-party sign-ins into verified domain.ExternalProfile values.
package oauth

import (
	"context"
	"errors"

	"github.com/prperemyshlev/care-auth/internal/domain"
)

// ErrInvalidIDToken is returned when an ID token fails signature, audience or expiry checks
var ErrInvalidIDToken = errors.New("invalid id token")

// Provider is an OpenID Connect identity provider.
// The web flow uses AuthCodeURL + Exchange with PKCE; mobile apps post an
// ID token they obtained natively, which VerifyIDToken checks.
type Provider interface {
	Name() string
	AuthCodeURL(state, codeVerifier string) string
	Exchange(ctx context.Context, code, codeVerifier string) (*domain.ExternalProfile, error)
	VerifyIDToken(ctx context.Context, rawIDToken string) (*domain.ExternalProfile, error)
}
