package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/dto"
	"github.com/prperemyshlev/care-auth/internal/oauth"
	"github.com/prperemyshlev/care-auth/internal/service"
	"github.com/prperemyshlev/care-auth/internal/utils"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	stateCookieName    = "google_oauth_state"
	verifierCookieName = "google_oauth_verifier"
	googleCookiePath   = "/api/v1/auth/google"
	googleCookieMaxAge = 600
)

var errGoogleDisabled = &domain.Error{
	Kind:    domain.KindServiceUnavailable,
	Message: "google sign-in is not configured",
}

// GoogleHandler serves both Google sign-in variants: the browser code flow
// and the ID token posted by mobile apps.
type GoogleHandler struct {
	authService service.AuthService
	// provider is nil when Google sign-in is not configured
	provider oauth.Provider
	logger   *zap.Logger
}

func NewGoogleHandler(authService service.AuthService, provider oauth.Provider, logger *zap.Logger) *GoogleHandler {
	return &GoogleHandler{
		authService: authService,
		provider:    provider,
		logger:      logger,
	}
}

// Redirect starts the code flow with a state and a PKCE verifier kept in short-lived cookies
// @Router /auth/google [get]
func (h *GoogleHandler) Redirect(c *gin.Context) {
	if h.provider == nil {
		writeError(c, h.logger, errGoogleDisabled)
		return
	}

	state, err := utils.GenerateOpaqueToken(16)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	verifier := oauth2.GenerateVerifier()

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, state, googleCookieMaxAge, googleCookiePath, "", true, true)
	c.SetCookie(verifierCookieName, verifier, googleCookieMaxAge, googleCookiePath, "", true, true)

	c.Redirect(http.StatusFound, h.provider.AuthCodeURL(state, verifier))
}

// Callback finishes the code flow
// @Router /auth/google/callback [get]
func (h *GoogleHandler) Callback(c *gin.Context) {
	if h.provider == nil {
		writeError(c, h.logger, errGoogleDisabled)
		return
	}

	state, _ := c.Cookie(stateCookieName)
	verifier, _ := c.Cookie(verifierCookieName)

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(stateCookieName, "", -1, googleCookiePath, "", true, true)
	c.SetCookie(verifierCookieName, "", -1, googleCookiePath, "", true, true)

	if reason := c.Query("error"); reason != "" {
		writeError(c, h.logger, domain.InvalidInput("google sign-in was cancelled: %s", reason))
		return
	}

	code := c.Query("code")
	if code == "" || state == "" || verifier == "" || !utils.EqualHashes(state, c.Query("state")) {
		writeError(c, h.logger, domain.InvalidInput("invalid or expired sign-in state"))
		return
	}

	profile, err := h.provider.Exchange(c.Request.Context(), code, verifier)
	if err != nil {
		h.rejectProfile(c, err)
		return
	}

	h.signIn(c, profile)
}

// Token signs in with an ID token a mobile app obtained from Google
// @Router /auth/google/token [post]
func (h *GoogleHandler) Token(c *gin.Context) {
	if h.provider == nil {
		writeError(c, h.logger, errGoogleDisabled)
		return
	}

	var req dto.GoogleTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	profile, err := h.provider.VerifyIDToken(c.Request.Context(), req.IDToken)
	if err != nil {
		h.rejectProfile(c, err)
		return
	}

	h.signIn(c, profile)
}

func (h *GoogleHandler) signIn(c *gin.Context, profile *domain.ExternalProfile) {
	response, err := h.authService.GoogleLogin(c.Request.Context(), profile)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	setRefreshCookie(c, &response.AuthResponse)
	c.JSON(http.StatusOK, response)
}

func (h *GoogleHandler) rejectProfile(c *gin.Context, err error) {
	h.logger.Warn("google sign-in rejected", zap.Error(err))
	if errors.Is(err, oauth.ErrInvalidIDToken) {
		writeError(c, h.logger, domain.ErrTokenInvalid)
		return
	}
	writeError(c, h.logger, &domain.Error{
		Kind:    domain.KindTokenInvalid,
		Message: "google sign-in failed",
	})
}
