package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vpscenter/authd/internal/domain"
	"github.com/vpscenter/authd/internal/usecase"
)

// AdminHandler exposes the admin-only surface.
type AdminHandler struct {
	usecase *usecase.AuthUsecase
}

func NewAdminHandler(g *echo.Group, u *usecase.AuthUsecase, authn echo.MiddlewareFunc) {
	handler := &AdminHandler{usecase: u}

	admin := g.Group("/admin", authn, RequireRole(domain.RoleAdmin))
	admin.GET("/users", handler.ListUsers)
}

func (h *AdminHandler) ListUsers(c echo.Context) error {
	users, err := h.usecase.ListUsers(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return respondData(c, http.StatusOK, users)
}
