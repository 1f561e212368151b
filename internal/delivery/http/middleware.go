package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/vpscenter/authd/internal/domain"
	"github.com/vpscenter/authd/pkg/security"
)

const identityContextKey = "auth.identity"

// Authenticate gates a request on a valid bearer access token: extract the
// header, verify signature/expiry/type, check the revocation blacklist, load
// the user, and attach the resulting identity to the context. Each step has
// its own 401 code; unexpected store failures collapse to a 500 AUTH_ERROR
// with details kept server-side.
func Authenticate(tokens *security.TokenIssuer, blacklist domain.TokenBlacklist, users domain.UserRepository) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				return respondCode(c, http.StatusUnauthorized, "Access token required", "TOKEN_REQUIRED")
			}
			raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
			if raw == "" {
				return respondCode(c, http.StatusUnauthorized, "Access token required", "TOKEN_REQUIRED")
			}

			// Rejects refresh tokens here as well: the type tag is
			// part of verification.
			claims, err := tokens.VerifyAccess(raw)
			if err != nil {
				return respondCode(c, http.StatusUnauthorized, "Invalid or expired token", "TOKEN_INVALID")
			}

			ctx := c.Request().Context()

			revoked, err := blacklist.IsRevoked(ctx, claims.ID)
			if err != nil {
				return authError(c, err)
			}
			if revoked {
				return respondCode(c, http.StatusUnauthorized, "Token has been revoked", "TOKEN_REVOKED")
			}

			user, err := users.GetByID(ctx, claims.UserID)
			if err != nil {
				if errors.Is(err, domain.ErrRecordNotFound) {
					return respondCode(c, http.StatusUnauthorized, "User not found", "USER_NOT_FOUND")
				}
				return authError(c, err)
			}

			c.Set(identityContextKey, &domain.Identity{
				UserID:      user.ID,
				Email:       user.Email,
				Role:        user.Role,
				TOTPEnabled: user.TOTPEnabled,
				TokenJTI:    claims.ID,
			})
			return next(c)
		}
	}
}

func authError(c echo.Context, err error) error {
	c.Logger().Error(err)
	return respondCode(c, http.StatusInternalServerError, "Authentication failed", "AUTH_ERROR")
}

// IdentityFrom returns the identity attached by Authenticate, if any.
func IdentityFrom(c echo.Context) (*domain.Identity, bool) {
	ident, ok := c.Get(identityContextKey).(*domain.Identity)
	return ident, ok
}

// RequireRole composes after Authenticate and admits only the listed roles.
// A request with no identity gets 401; a known identity outside the allowed
// set gets 403.
func RequireRole(roles ...domain.Role) echo.MiddlewareFunc {
	allowed := make(map[domain.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ident, ok := IdentityFrom(c)
			if !ok {
				return respondCode(c, http.StatusUnauthorized, "Authentication required", "AUTH_REQUIRED")
			}
			if !allowed[ident.Role] {
				return respondCode(c, http.StatusForbidden, "Insufficient permissions", "FORBIDDEN")
			}
			return next(c)
		}
	}
}
