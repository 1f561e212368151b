package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vpscenter/authd/internal/domain"
)

// All responses share one envelope: {success, data|error, code?, message?}.

func respondData(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, echo.Map{"success": true, "data": data})
}

func respondMessage(c echo.Context, message string) error {
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": message})
}

func respondCode(c echo.Context, status int, message, code string) error {
	return c.JSON(status, echo.Map{"success": false, "error": message, "code": code})
}

// respondError maps a domain AppError onto its fixed status and code.
// Anything else is an internal fault: logged server-side, surfaced as a
// generic 500 with no detail.
func respondError(c echo.Context, err error) error {
	var appErr *domain.AppError
	if errors.As(err, &appErr) {
		return respondCode(c, appErr.Status, appErr.Message, appErr.Code)
	}
	c.Logger().Error(err)
	return respondCode(c, http.StatusInternalServerError, "Internal server error", "INTERNAL_ERROR")
}

func respondBadRequest(c echo.Context, message string) error {
	return respondCode(c, http.StatusBadRequest, message, "VALIDATION_ERROR")
}
