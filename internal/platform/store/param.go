package store

import (
	"github.com/labstack/echo/v4"

	"github.com/mango/reabilita/internal/platform/apperr"
)

// KeyParam returns the named route parameter after checking it can be used
// as a path segment.
func KeyParam(c echo.Context, name string) (string, error) {
	v := c.Param(name)
	if !ValidKey(v) {
		return "", apperr.BadRequest("invalid %s %q", name, v)
	}
	return v, nil
}
