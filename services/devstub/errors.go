package devstub

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

var (
	errInvalidAPIKey      = echo.NewHTTPError(http.StatusUnauthorized, "No API key found in request")
	errInvalidCredentials = echo.NewHTTPError(http.StatusBadRequest, "Invalid login credentials")
	errEmailNotConfirmed  = echo.NewHTTPError(http.StatusBadRequest, "Email not confirmed")
	errEmailRegistered    = echo.NewHTTPError(http.StatusUnprocessableEntity, "A user with this email address has already been registered")
	errUnauthorized       = echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing access token")
	errForbidden          = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errNotFound           = echo.NewHTTPError(http.StatusNotFound, "not found")
	errBadGrantType       = echo.NewHTTPError(http.StatusBadRequest, "unsupported grant_type")
)

// stubHTTPErrorHandler renders errors in the hosted provider's body shape so
// clients exercise the same parsing paths they would in production.
func stubHTTPErrorHandler(err error, ctx echo.Context) {
	code := http.StatusInternalServerError
	msg := http.StatusText(code)

	if herr, ok := errors.Cause(err).(*echo.HTTPError); ok {
		code = herr.Code
		if m, ok := herr.Message.(string); ok {
			msg = m
		}
	}

	body := echo.Map{"msg": msg, "code": code}
	if code == http.StatusBadRequest {
		body = echo.Map{"error": "invalid_grant", "error_description": msg}
	}

	if !ctx.Response().Committed {
		if jerr := ctx.JSON(code, body); jerr != nil {
			ctx.Echo().Logger.Error(jerr)
		}
	}
}
