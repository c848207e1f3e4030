package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/careerpath-dev/careerpath/internal/accounts"
	"github.com/careerpath-dev/careerpath/internal/models"
)

// Error codes returned in the "code" field of error responses
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeEmailExists        = "EMAIL_EXISTS"
	CodeNotFound           = "NOT_FOUND"
	CodeInvalidToken       = "INVALID_REFRESH_TOKEN"
	CodeInvalidResetCode   = "INVALID_RESET_CODE"
	CodeProviderRejected   = "PROVIDER_REJECTED"
	CodeInternal           = "INTERNAL"
)

// CredentialsRequest is the body of sign-up and sign-in
type CredentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LookupRequest asks which sign-in methods an email has
type LookupRequest struct {
	Email string `json:"email" binding:"required"`
}

// LookupResponse lists sign-in methods, empty for unknown emails
type LookupResponse struct {
	Email   string   `json:"email"`
	Methods []string `json:"methods"`
}

// FederatedRequest exchanges a provider access token for a session
type FederatedRequest struct {
	Provider    string `json:"provider" binding:"required"`
	AccessToken string `json:"access_token" binding:"required"`
}

// RefreshRequest carries a refresh token
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// PasswordResetRequest starts a password reset
type PasswordResetRequest struct {
	Email string `json:"email" binding:"required"`
}

// PasswordResetConfirmRequest completes a password reset
type PasswordResetConfirmRequest struct {
	Code     string `json:"code" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserDetail represents account information returned in responses
type UserDetail struct {
	UID       string    `json:"uid"`
	Email     string    `json:"email"`
	Providers []string  `json:"providers"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionResponse is returned by every endpoint that signs a user in
type SessionResponse struct {
	IDToken      string      `json:"id_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresAt    time.Time   `json:"expires_at"`
	User         *UserDetail `json:"user"`
}

func userDetail(a *models.Account) *UserDetail {
	return &UserDetail{
		UID:       a.ID,
		Email:     a.Email,
		Providers: a.ProviderNames(),
		CreatedAt: a.CreatedAt,
	}
}

func sessionResponse(sess *accounts.Session) SessionResponse {
	return SessionResponse{
		IDToken:      sess.IDToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
		User:         userDetail(sess.Account),
	}
}

// writeServiceError maps accounts errors onto HTTP responses
func (s *Server) writeServiceError(c *gin.Context, operation string, err error) {
	status, code, message := http.StatusInternalServerError, CodeInternal, "Internal server error"

	var verr *accounts.ValidationError
	switch {
	case errors.As(err, &verr):
		status, code, message = http.StatusBadRequest, CodeInvalidRequest, verr.Error()
	case errors.Is(err, accounts.ErrInvalidCredentials):
		status, code, message = http.StatusUnauthorized, CodeInvalidCredentials, "Invalid email or password"
	case errors.Is(err, accounts.ErrEmailExists):
		status, code, message = http.StatusConflict, CodeEmailExists, "Email already registered"
	case errors.Is(err, accounts.ErrNotFound):
		status, code, message = http.StatusNotFound, CodeNotFound, "Account not found"
	case errors.Is(err, accounts.ErrInvalidRefreshToken):
		status, code, message = http.StatusUnauthorized, CodeInvalidToken, "Invalid or expired refresh token"
	case errors.Is(err, accounts.ErrInvalidResetCode):
		status, code, message = http.StatusBadRequest, CodeInvalidResetCode, "Invalid or expired reset code"
	case errors.Is(err, accounts.ErrUnsupportedProvider):
		status, code, message = http.StatusBadRequest, CodeInvalidRequest, "Unsupported identity provider"
	case errors.Is(err, accounts.ErrProviderRejected):
		status, code, message = http.StatusUnauthorized, CodeProviderRejected, "Identity provider rejected the credential"
	default:
		s.logger.Error().Err(err).Str("operation", operation).Msg("Account operation failed")
	}

	recordOperation(operation, code)
	c.JSON(status, gin.H{"error": message, "code": code})
}

func badRequest(c *gin.Context, operation string, err error) {
	recordOperation(operation, CodeInvalidRequest)
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": CodeInvalidRequest})
}

// @Summary Create a password account
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body CredentialsRequest true "Credentials"
// @Success 201 {object} SessionResponse
// @Failure 400 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /v1/accounts/sign-up [post]
func (s *Server) signUp(c *gin.Context) {
	const op = "sign_up"
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, op, err)
		return
	}

	sess, err := s.accounts.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(c, op, err)
		return
	}

	recordOperation(op, "ok")
	c.JSON(http.StatusCreated, sessionResponse(sess))
}

// @Summary Sign in with email and password
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body CredentialsRequest true "Credentials"
// @Success 200 {object} SessionResponse
// @Failure 401 {object} map[string]interface{}
// @Router /v1/accounts/sign-in [post]
func (s *Server) signIn(c *gin.Context) {
	const op = "sign_in"
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, op, err)
		return
	}

	sess, err := s.accounts.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(c, op, err)
		return
	}

	recordOperation(op, "ok")
	c.JSON(http.StatusOK, sessionResponse(sess))
}

// @Summary List sign-in methods for an email
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body LookupRequest true "Email"
// @Success 200 {object} LookupResponse
// @Router /v1/accounts/lookup [post]
func (s *Server) lookup(c *gin.Context) {
	const op = "lookup"
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, op, err)
		return
	}

	methods, err := s.accounts.Lookup(c.Request.Context(), req.Email)
	if err != nil {
		s.writeServiceError(c, op, err)
		return
	}

	recordOperation(op, "ok")
	c.JSON(http.StatusOK, LookupResponse{Email: accounts.NormalizeEmail(req.Email), Methods: methods})
}

// @Summary Sign in with a federated provider
// @Tags accounts
// @Accept json
// @Produce json
// @Param request body FederatedRequest true "Provider token"
// @Success 200 {object} SessionResponse
// @Failure 401 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Router /v1/accounts/federated [post]
func (s *Server) signInFederated(c *gin.Context) {
	const op = "federated"
	var req FederatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, op, err)
		return
	}

	sess, err := s.accounts.SignInFederated(c.Request.Context(), req.Provider, req.AccessToken)
	if err != nil {
		s.writeServiceError(c, op, err)
		return
	}

	recordOperation(op, "ok")
	c.JSON(http.StatusOK, sessionResponse(sess))
}

// @Summary Redeem a refresh token
// @Tags tokens
// @Accept json
// @Produce json
// @Param request body RefreshRequest true "Refresh token"
// @Success 200 {object} SessionResponse
// @Failure 401 {object} map[string]interface{}
// @Router /v1/token [post]
func (s *Server) refreshToken(c *gin.Context) {
	const op = "refresh"
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, op, err)
		return
	}

	sess, err := s.accounts.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		s.writeServiceError(c, op, err)
		return
	}

	recordOperation(op, "ok")
	c.JSON(http.StatusOK, sessionResponse(sess))
}

// @Summary Revoke a refresh token
// @Tags accounts
// @Accept json
// @Param request body RefreshRequest true "Refresh token"
// @Success 204
// @Router /v1/accounts/sign-out [post]
func (s *Server) signOut(c *gin.Context) {
	const op = "sign_out"
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, op, err)
		return
	}

	if err := s.accounts.SignOut(c.Request.Context(), req.RefreshToken); err != nil {
		s.writeServiceError(c, op, err)
		return
	}

	recordOperation(op, "ok")
	c.Status(http.StatusNoContent)
}

// @Summary Send a password reset code
// @Description The code is delivered out of band; this development server logs it.
// @Tags accounts
// @Accept json
// @Param request body PasswordResetRequest true "Email"
// @Success 202
// @Failure 404 {object} map[string]interface{}
// @Router /v1/accounts/password-reset [post]
func (s *Server) requestPasswordReset(c *gin.Context) {
	const op = "password_reset"
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, op, err)
		return
	}

	code, err := s.accounts.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		s.writeServiceError(c, op, err)
		return
	}

	s.logger.Info().
		Str("email", accounts.NormalizeEmail(req.Email)).
		Str("code", code).
		Dur("valid_for", accounts.ResetCodeTTL).
		Msg("Password reset code issued")

	recordOperation(op, "ok")
	c.Status(http.StatusAccepted)
}

// @Summary Complete a password reset
// @Tags accounts
// @Accept json
// @Param request body PasswordResetConfirmRequest true "Code and new password"
// @Success 204
// @Failure 400 {object} map[string]interface{}
// @Router /v1/accounts/password-reset/confirm [post]
func (s *Server) confirmPasswordReset(c *gin.Context) {
	const op = "password_reset_confirm"
	var req PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, op, err)
		return
	}

	if err := s.accounts.ConfirmPasswordReset(c.Request.Context(), req.Code, req.Password); err != nil {
		s.writeServiceError(c, op, err)
		return
	}

	recordOperation(op, "ok")
	c.Status(http.StatusNoContent)
}

// @Summary Get the signed-in account
// @Tags accounts
// @Produce json
// @Success 200 {object} UserDetail
// @Failure 401 {object} map[string]interface{}
// @Router /v1/accounts/me [get]
func (s *Server) getCurrentUser(c *gin.Context) {
	sessionData, ok := GetSessionData(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	account, err := s.accounts.Get(c.Request.Context(), sessionData.UserID)
	if err != nil {
		s.writeServiceError(c, "me", err)
		return
	}

	c.JSON(http.StatusOK, userDetail(account))
}
