package acceptance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prperemyshlev/care-auth/internal/domain"
	"github.com/prperemyshlev/care-auth/internal/dto"
	"github.com/prperemyshlev/care-auth/internal/mail"
)

const testPassword = "Password123"

func (s *Suite) post(path string, body any, opts ...func(*http.Request)) *http.Response {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(http.MethodPost, s.BaseURL+path, &buf)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	for _, opt := range opts {
		opt(req)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *Suite) get(path string, opts ...func(*http.Request)) *http.Response {
	req, err := http.NewRequest(http.MethodGet, s.BaseURL+path, nil)
	s.Require().NoError(err)
	for _, opt := range opts {
		opt(req)
	}

	resp, err := http.DefaultClient.Do(req)
	s.Require().NoError(err)
	return resp
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) {
		r.Header.Set("Authorization", fmt.Sprintf("Bearer %s", token))
	}
}

func withCookies(cookies []*http.Cookie) func(*http.Request) {
	return func(r *http.Request) {
		for _, c := range cookies {
			r.AddCookie(c)
		}
	}
}

func decodeInto[T any](s *Suite, resp *http.Response) T {
	defer resp.Body.Close()
	var out T
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func patientRequest(email string) dto.RegisterRequest {
	return dto.RegisterRequest{
		Email:              email,
		Password:           testPassword,
		Role:               string(domain.RolePatient),
		FirstName:          "Ana",
		LastName:           "Souza",
		TermsAccepted:      true,
		DisclaimerAccepted: true,
	}
}

// register creates a patient and returns the auth body plus the refresh cookie
func (s *Suite) register(email string) (dto.AuthResponse, []*http.Cookie) {
	resp := s.post("/api/v1/auth/register", patientRequest(email))
	s.Require().Equal(http.StatusCreated, resp.StatusCode, "Registration should succeed")
	cookies := resp.Cookies()
	return decodeInto[dto.AuthResponse](s, resp), cookies
}

func (s *Suite) login(email, password string) *http.Response {
	return s.post("/api/v1/auth/login", dto.LoginRequest{Email: email, Password: password})
}

// queuedOTP reads the newest recovery code addressed to email from the mail queue
func (s *Suite) queuedOTP(email string) string {
	tasks, err := s.Inspector.ListPendingTasks(mailQueue)
	s.Require().NoError(err)

	var code string
	for _, task := range tasks {
		if task.Type != mail.TaskPasswordResetOTP {
			continue
		}
		var payload struct {
			To     string `json:"to"`
			Secret string `json:"secret"`
		}
		s.Require().NoError(json.Unmarshal(task.Payload, &payload))
		if payload.To == email {
			code = payload.Secret
		}
	}
	s.Require().NotEmpty(code, "no code queued for %s", email)
	return code
}

func (s *Suite) TestRegister_Success() {
	resp := s.post("/api/v1/auth/register", patientRequest("test@example.com"))
	s.Equal(http.StatusCreated, resp.StatusCode)

	cookies := resp.Cookies()
	authResp := decodeInto[dto.AuthResponse](s, resp)

	s.NotEmpty(authResp.AccessToken)
	s.NotEmpty(authResp.RefreshToken)
	s.Equal("Bearer", authResp.TokenType)
	s.Equal(3600, authResp.ExpiresIn)
	s.Equal("test@example.com", authResp.User.Email)
	s.Equal(string(domain.RolePatient), authResp.User.Role)
	s.NotEmpty(authResp.User.ID)
	s.NotEmpty(cookies, "Should have refresh token cookie")
}

func (s *Suite) TestRegister_DuplicateEmail() {
	s.register("duplicate@example.com")

	resp := s.post("/api/v1/auth/register", patientRequest("Duplicate@Example.com"))
	s.Equal(http.StatusConflict, resp.StatusCode)

	errResp := decodeInto[dto.ErrorResponse](s, resp)
	s.Equal(string(domain.KindEmailAlreadyRegistered), errResp.Error)
}

func (s *Suite) TestRegister_InvalidEmail() {
	resp := s.post("/api/v1/auth/register", patientRequest("invalid-email"))
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestRegister_ShortPassword() {
	req := patientRequest("test@example.com")
	req.Password = "short"

	resp := s.post("/api/v1/auth/register", req)
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	errResp := decodeInto[dto.ErrorResponse](s, resp)
	s.Equal(string(domain.KindInvalidInput), errResp.Error)
}

func (s *Suite) TestRegister_TermsRequired() {
	req := patientRequest("terms@example.com")
	req.TermsAccepted = false

	resp := s.post("/api/v1/auth/register", req)
	defer resp.Body.Close()

	s.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (s *Suite) TestLogin_Success() {
	s.register("login@example.com")

	resp := s.login("login@example.com", testPassword)
	s.Equal(http.StatusOK, resp.StatusCode)

	cookies := resp.Cookies()
	authResp := decodeInto[dto.AuthResponse](s, resp)

	s.NotEmpty(authResp.AccessToken)
	s.Equal("Bearer", authResp.TokenType)
	s.Equal("login@example.com", authResp.User.Email)
	s.NotEmpty(cookies, "Should have refresh token cookie")
}

func (s *Suite) TestLogin_InvalidCredentials() {
	resp := s.login("nonexistent@example.com", "wrongpassword")
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	errResp := decodeInto[dto.ErrorResponse](s, resp)
	s.Equal(string(domain.KindInvalidCredentials), errResp.Error)
}

func (s *Suite) TestLogin_WrongPassword() {
	s.register("wrongpass@example.com")

	resp := s.login("wrongpass@example.com", "WrongPassword123")
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	errResp := decodeInto[dto.ErrorResponse](s, resp)
	s.Equal(string(domain.KindInvalidCredentials), errResp.Error)
	s.Equal(map[string]any{"attempts_remaining": float64(4)}, errResp.Details)
}

func (s *Suite) TestLogin_LocksAfterRepeatedFailures() {
	s.register("locked@example.com")

	for i := 0; i < 4; i++ {
		resp := s.login("locked@example.com", "WrongPassword123")
		resp.Body.Close()
		s.Equal(http.StatusUnauthorized, resp.StatusCode)
	}

	resp := s.login("locked@example.com", "WrongPassword123")
	resp.Body.Close()
	s.Equal(http.StatusLocked, resp.StatusCode)

	// the right password does not get through a lock
	resp = s.login("locked@example.com", testPassword)
	s.Equal(http.StatusLocked, resp.StatusCode)
	s.NotEmpty(resp.Header.Get("Retry-After"))

	errResp := decodeInto[dto.ErrorResponse](s, resp)
	s.Equal(string(domain.KindAccountLocked), errResp.Error)
}

func (s *Suite) TestGetMe_Success() {
	authResp, _ := s.register("getme@example.com")

	resp := s.get("/api/v1/auth/me", withBearer(authResp.AccessToken))
	s.Equal(http.StatusOK, resp.StatusCode)

	userResp := decodeInto[dto.UserResponse](s, resp)
	s.NotEmpty(userResp.ID)
	s.Equal("getme@example.com", userResp.Email)
	s.Equal(string(domain.RolePatient), userResp.Role)
	s.NotEmpty(userResp.CreatedAt)
	s.NotEmpty(userResp.UpdatedAt)
	s.False(userResp.IsEmailVerified)
	s.False(userResp.RequiresRoleSelection)
}

func (s *Suite) TestGetMe_NoToken() {
	resp := s.get("/api/v1/auth/me")
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestGetMe_InvalidToken() {
	resp := s.get("/api/v1/auth/me", withBearer("invalid-token"))
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	errResp := decodeInto[dto.ErrorResponse](s, resp)
	s.Equal(string(domain.KindTokenInvalid), errResp.Error)
}

func (s *Suite) TestLogout_Success() {
	authResp, cookies := s.register("logout@example.com")

	resp := s.post("/api/v1/auth/logout", nil, withBearer(authResp.AccessToken))
	s.Equal(http.StatusOK, resp.StatusCode)

	successResp := decodeInto[dto.SuccessResponse](s, resp)
	s.Equal("Logged out successfully", successResp.Message)

	// the refresh token from before logout is dead
	resp = s.post("/api/v1/auth/refresh", nil, withCookies(cookies))
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestLogout_NoToken() {
	resp := s.post("/api/v1/auth/logout", nil)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestRefresh_Success() {
	_, cookies := s.register("refresh@example.com")
	s.Require().NotEmpty(cookies)

	resp := s.post("/api/v1/auth/refresh", nil, withCookies(cookies))
	s.Equal(http.StatusOK, resp.StatusCode)

	authResp := decodeInto[dto.AuthResponse](s, resp)
	s.NotEmpty(authResp.AccessToken)
	s.NotEmpty(authResp.RefreshToken)
	s.Equal("Bearer", authResp.TokenType)
}

func (s *Suite) TestRefresh_TokenInBody() {
	registered, _ := s.register("refresh-body@example.com")

	resp := s.post("/api/v1/auth/refresh", dto.RefreshRequest{RefreshToken: registered.RefreshToken})
	s.Equal(http.StatusOK, resp.StatusCode)

	authResp := decodeInto[dto.AuthResponse](s, resp)
	s.NotEqual(registered.RefreshToken, authResp.RefreshToken)
}

func (s *Suite) TestRefresh_OldTokenRejectedAfterRotation() {
	_, cookies := s.register("rotate@example.com")

	resp := s.post("/api/v1/auth/refresh", nil, withCookies(cookies))
	resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	resp = s.post("/api/v1/auth/refresh", nil, withCookies(cookies))
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	errResp := decodeInto[dto.ErrorResponse](s, resp)
	s.Equal(string(domain.KindTokenInvalid), errResp.Error)
}

func (s *Suite) TestRefresh_NoCookie() {
	resp := s.post("/api/v1/auth/refresh", nil)
	defer resp.Body.Close()

	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *Suite) TestPasswordOTP_Flow() {
	const email = "otp@example.com"
	s.register(email)

	resp := s.post("/api/v1/auth/password-otp/request", dto.RequestOTPRequest{Email: email})
	resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	code := s.queuedOTP(email)

	resp = s.post("/api/v1/auth/password-otp/verify", dto.VerifyOTPRequest{Email: email, Code: code})
	s.Equal(http.StatusOK, resp.StatusCode)
	s.True(decodeInto[dto.VerifyOTPResponse](s, resp).Valid)

	resp = s.post("/api/v1/auth/password-otp/reset", dto.ResetPasswordWithOTPRequest{
		Email:       email,
		Code:        code,
		NewPassword: "NewPassword456",
	})
	resp.Body.Close()
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	// the code is single use
	resp = s.post("/api/v1/auth/password-otp/reset", dto.ResetPasswordWithOTPRequest{
		Email:       email,
		Code:        code,
		NewPassword: "OtherPassword789",
	})
	resp.Body.Close()
	s.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = s.login(email, testPassword)
	resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp = s.login(email, "NewPassword456")
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *Suite) TestPasswordOTP_UnknownEmailLooksTheSame() {
	resp := s.post("/api/v1/auth/password-otp/request", dto.RequestOTPRequest{Email: "nobody@example.com"})
	s.Equal(http.StatusOK, resp.StatusCode)

	successResp := decodeInto[dto.SuccessResponse](s, resp)
	s.Contains(successResp.Message, "If the email is registered")
}

func (s *Suite) TestGoogle_DisabledWithoutClientID() {
	resp := s.post("/api/v1/auth/google/token", dto.GoogleTokenRequest{IDToken: "anything"})
	defer resp.Body.Close()

	s.Equal(http.StatusServiceUnavailable, resp.StatusCode)
}

func (s *Suite) TestCompleteFlow() {
	authResp, cookies := s.register("complete@example.com")

	resp := s.get("/api/v1/auth/me", withBearer(authResp.AccessToken))
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	resp = s.post("/api/v1/auth/refresh", nil, withCookies(cookies))
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	newAccessToken := decodeInto[dto.AuthResponse](s, resp).AccessToken

	resp = s.post("/api/v1/auth/logout", nil, withBearer(newAccessToken))
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	// access tokens stay valid until they expire
	resp = s.get("/api/v1/auth/me", withBearer(newAccessToken))
	resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}
