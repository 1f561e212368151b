package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vpscenter/authd/internal/usecase"
)

// MFAHandler manages TOTP enrollment for an already-authenticated user.
type MFAHandler struct {
	usecase *usecase.AuthUsecase
}

func NewMFAHandler(g *echo.Group, u *usecase.AuthUsecase, authn echo.MiddlewareFunc) {
	handler := &MFAHandler{usecase: u}

	g.POST("/auth/2fa/setup", handler.Setup, authn)
	g.POST("/auth/2fa/enable", handler.Enable, authn)
	g.POST("/auth/2fa/disable", handler.Disable, authn)
}

type totpCodeRequest struct {
	TOTPCode string `json:"totpCode"`
}

type disableTOTPRequest struct {
	Password string `json:"password"`
	TOTPCode string `json:"totpCode"`
}

// Setup generates a new secret and QR code. The secret is persisted
// immediately but stays inactive until Enable confirms a code.
func (h *MFAHandler) Setup(c echo.Context) error {
	ident, _ := IdentityFrom(c)

	setup, err := h.usecase.SetupTOTP(c.Request().Context(), ident.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, http.StatusOK, setup)
}

// Enable verifies the first code and turns the second factor on.
func (h *MFAHandler) Enable(c echo.Context) error {
	ident, _ := IdentityFrom(c)

	var req totpCodeRequest
	if err := c.Bind(&req); err != nil {
		return respondBadRequest(c, "invalid request body")
	}
	if req.TOTPCode == "" {
		return respondBadRequest(c, "totpCode is required")
	}

	if err := h.usecase.EnableTOTP(c.Request().Context(), ident.UserID, req.TOTPCode); err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, "2FA enabled successfully")
}

// Disable needs two proofs: the current password and a valid code.
func (h *MFAHandler) Disable(c echo.Context) error {
	ident, _ := IdentityFrom(c)

	var req disableTOTPRequest
	if err := c.Bind(&req); err != nil {
		return respondBadRequest(c, "invalid request body")
	}
	if req.Password == "" || req.TOTPCode == "" {
		return respondBadRequest(c, "password and totpCode are required")
	}

	if err := h.usecase.DisableTOTP(c.Request().Context(), ident.UserID, req.Password, req.TOTPCode); err != nil {
		return respondError(c, err)
	}
	return respondMessage(c, "2FA disabled successfully")
}
