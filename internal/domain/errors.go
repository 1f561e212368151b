package domain

import "net/http"

// AppError is a failure with a stable machine-readable code and a fixed HTTP
// status. The status codes are part of the API contract.
type AppError struct {
	Code    string
	Status  int
	Message string
}

func (e *AppError) Error() string { return e.Message }

// Is matches on the code alone so errors.Is works across WithStatus copies.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	return ok && t.Code == e.Code
}

// WithStatus returns a copy of e carrying a different HTTP status. Some
// codes surface with different statuses depending on the call site, e.g.
// USER_NOT_FOUND is 404 from profile lookups but 401 during token refresh.
func (e *AppError) WithStatus(status int) *AppError {
	c := *e
	c.Status = status
	return &c
}

var (
	// Generic on purpose: the message must not reveal whether the email
	// exists (enumeration resistance).
	ErrInvalidCredentials = &AppError{Code: "INVALID_CREDENTIALS", Status: http.StatusUnauthorized, Message: "Invalid email or password"}

	ErrInvalidTOTP         = &AppError{Code: "INVALID_TOTP", Status: http.StatusUnauthorized, Message: "Invalid 2FA code"}
	ErrInvalidPassword     = &AppError{Code: "INVALID_PASSWORD", Status: http.StatusUnauthorized, Message: "Current password is incorrect"}
	ErrInvalidRefreshToken = &AppError{Code: "INVALID_REFRESH_TOKEN", Status: http.StatusUnauthorized, Message: "Invalid refresh token"}
	ErrTokenRevoked        = &AppError{Code: "TOKEN_REVOKED", Status: http.StatusUnauthorized, Message: "Token has been revoked"}
	ErrUserNotFound        = &AppError{Code: "USER_NOT_FOUND", Status: http.StatusNotFound, Message: "User not found"}

	ErrTOTPAlreadyEnabled = &AppError{Code: "TOTP_ALREADY_ENABLED", Status: http.StatusBadRequest, Message: "2FA is already enabled"}
	ErrTOTPNotSetup       = &AppError{Code: "TOTP_NOT_SETUP", Status: http.StatusBadRequest, Message: "2FA setup not initiated"}
	ErrTOTPNotEnabled     = &AppError{Code: "TOTP_NOT_ENABLED", Status: http.StatusBadRequest, Message: "2FA is not enabled"}
)
