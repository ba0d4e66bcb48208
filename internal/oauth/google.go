package oauth

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/prperemyshlev/care-auth/internal/domain"
)

const (
	googleIssuer = "https://accounts.google.com"
	googleName   = "google"
)

// GoogleConfig holds the client registration used for both flows
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// Audiences lists extra client ids (iOS, Android) whose ID tokens are accepted
	Audiences []string
}

// GoogleProvider implements Provider on Google's OIDC discovery document
type GoogleProvider struct {
	config    *oauth2.Config
	verifier  *oidc.IDTokenVerifier
	audiences []string
}

// NewGoogleProvider fetches Google's discovery document; it fails when Google is unreachable
func NewGoogleProvider(ctx context.Context, cfg GoogleConfig) (*GoogleProvider, error) {
	p, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("google oidc discovery: %w", err)
	}

	// the audience is checked against every configured client id below
	verifier := p.Verifier(&oidc.Config{SkipClientIDCheck: true})
	return newGoogleProvider(cfg, p.Endpoint(), verifier), nil
}

func newGoogleProvider(cfg GoogleConfig, endpoint oauth2.Endpoint, verifier *oidc.IDTokenVerifier) *GoogleProvider {
	audiences := append([]string{cfg.ClientID}, cfg.Audiences...)

	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		},
		verifier:  verifier,
		audiences: audiences,
	}
}

func (p *GoogleProvider) Name() string { return googleName }

// AuthCodeURL builds the consent URL with state and an S256 PKCE challenge
func (p *GoogleProvider) AuthCodeURL(state, codeVerifier string) string {
	return p.config.AuthCodeURL(state, oauth2.S256ChallengeOption(codeVerifier))
}

// Exchange trades an authorization code for a verified profile
func (p *GoogleProvider) Exchange(ctx context.Context, code, codeVerifier string) (*domain.ExternalProfile, error) {
	token, err := p.config.Exchange(ctx, code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("exchanging code: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, fmt.Errorf("no id_token in token response: %w", ErrInvalidIDToken)
	}
	return p.VerifyIDToken(ctx, rawIDToken)
}

// VerifyIDToken checks signature, issuer, expiry and audience, then maps the claims
func (p *GoogleProvider) VerifyIDToken(ctx context.Context, rawIDToken string) (*domain.ExternalProfile, error) {
	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidIDToken, err)
	}

	if !slices.ContainsFunc(idToken.Audience, func(aud string) bool {
		return slices.Contains(p.audiences, aud)
	}) {
		return nil, fmt.Errorf("%w: unexpected audience", ErrInvalidIDToken)
	}

	var c struct {
		Email         string `json:"email"`
		EmailVerified bool   `json:"email_verified"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
	}
	if err := idToken.Claims(&c); err != nil {
		return nil, fmt.Errorf("%w: extracting claims: %v", ErrInvalidIDToken, err)
	}

	return &domain.ExternalProfile{
		Provider:      googleName,
		Subject:       idToken.Subject,
		Email:         strings.ToLower(strings.TrimSpace(c.Email)),
		EmailVerified: c.EmailVerified,
		FirstName:     c.GivenName,
		LastName:      c.FamilyName,
		Picture:       c.Picture,
	}, nil
}
