package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vpscenter/authd/internal/usecase"
)

// AuthHandler is the HTTP delivery layer for login, refresh, logout, and
// account self-service.
type AuthHandler struct {
	usecase *usecase.AuthUsecase
}

// NewAuthHandler registers the authentication routes. loginLimiter rate
// limits the two credential-bearing endpoints; authn protects everything
// that requires a bearer token.
func NewAuthHandler(g *echo.Group, u *usecase.AuthUsecase, authn echo.MiddlewareFunc, loginLimiter echo.MiddlewareFunc) {
	handler := &AuthHandler{usecase: u}

	g.POST("/auth/login", handler.Login, loginLimiter)
	g.POST("/auth/login/2fa", handler.LoginWithTOTP, loginLimiter)
	g.POST("/auth/refresh", handler.Refresh)

	g.POST("/auth/logout", handler.Logout, authn)
	g.GET("/auth/me", handler.Me, authn)
	g.POST("/auth/password/change", handler.ChangePassword, authn)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginTOTPRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totpCode"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type logoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// Login is the first authentication step. Accounts with 2FA enabled get a
// challenge marker instead of tokens.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return respondBadRequest(c, "invalid request body")
	}
	if req.Email == "" || req.Password == "" {
		return respondBadRequest(c, "email and password are required")
	}

	pair, requiresTwoFactor, err := h.usecase.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	if requiresTwoFactor {
		return c.JSON(http.StatusOK, echo.Map{
			"success":           true,
			"requiresTwoFactor": true,
			"message":           "2FA verification required",
		})
	}
	return respondData(c, http.StatusOK, pair)
}

// LoginWithTOTP completes a two-factor login. Credentials are resubmitted and
// fully re-verified; no state survives from the first step.
func (h *AuthHandler) LoginWithTOTP(c echo.Context) error {
	var req loginTOTPRequest
	if err := c.Bind(&req); err != nil {
		return respondBadRequest(c, "invalid request body")
	}
	if req.Email == "" || req.Password == "" || req.TOTPCode == "" {
		return respondBadRequest(c, "email, password and totpCode are required")
	}

	pair, err := h.usecase.LoginWithTOTP(c.Request().Context(), req.Email, req.Password, req.TOTPCode)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, http.StatusOK, pair)
}

// Refresh rotates a refresh token into a new pair.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return respondBadRequest(c, "invalid request body")
	}
	if req.RefreshToken == "" {
		return respondBadRequest(c, "refreshToken is required")
	}

	pair, err := h.usecase.RefreshTokens(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, http.StatusOK, pair)
}

// Logout revokes the submitted refresh token. The access token keeps working
// until its natural expiry.
func (h *AuthHandler) Logout(c echo.Context) error {
	ident, _ := IdentityFrom(c)

	var req logoutRequest
	if err := c.Bind(&req); err != nil {
		return respondBadRequest(c, "invalid request body")
	}

	if err := h.usecase.Logout(c.Request().Context(), ident.TokenJTI, req.RefreshToken); err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, "Logged out successfully")
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	ident, _ := IdentityFrom(c)

	profile, err := h.usecase.CurrentUser(c.Request().Context(), ident.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, http.StatusOK, profile)
}

// ChangePassword swaps the password after verifying the current one.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	ident, _ := IdentityFrom(c)

	var req changePasswordRequest
	if err := c.Bind(&req); err != nil {
		return respondBadRequest(c, "invalid request body")
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return respondBadRequest(c, "currentPassword and newPassword are required")
	}

	if err := h.usecase.ChangePassword(c.Request().Context(), ident.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, "Password changed successfully")
}
