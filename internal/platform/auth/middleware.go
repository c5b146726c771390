package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// RequireToken rejects requests without a bearer token the issuer accepts.
// Browsers cannot set headers on websocket upgrades, so a "token" query
// parameter is accepted as well.
func RequireToken(issuer Issuer, skipper func(echo.Context) bool) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			token := c.QueryParam("token")
			if authHeader := c.Request().Header.Get("Authorization"); authHeader != "" {
				parts := strings.SplitN(authHeader, " ", 2)
				if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
					return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
				}
				token = parts[1]
			}
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			if _, err := issuer.Validate(token); err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
			}
			return next(c)
		}
	}
}
