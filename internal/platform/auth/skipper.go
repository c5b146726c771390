package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass token enforcement.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/store": true,
	"/signin":       true,
}

// Skipper exempts public endpoints and CORS preflight requests. Only the
// patient and live routes are protected.
func Skipper(c echo.Context) bool {
	if c.Request().Method == "OPTIONS" {
		return true
	}
	path := c.Request().URL.Path
	if publicPaths[path] {
		return true
	}
	return !strings.HasPrefix(path, "/pacientes") && !strings.HasPrefix(path, "/ws/") &&
		!strings.HasPrefix(path, "/save-sensor-data")
}
