// Package apperr defines the error kinds returned by every domain operation
// and their translation to HTTP responses at the handler boundary.
package apperr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Kind classifies an operation failure.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindBadRequest
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindBadRequest:
		return "bad_request"
	default:
		return "internal"
	}
}

// Error is the typed error returned by services and repositories.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports a missing entity or collection.
func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// BadRequest reports invalid caller input.
func BadRequest(format string, args ...any) *Error {
	return &Error{Kind: KindBadRequest, Message: fmt.Sprintf(format, args...)}
}

// Internal wraps a collaborator failure. The cause's message is embedded in
// the detail returned to clients.
func Internal(err error, format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindInternal for untyped errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

func IsNotFound(err error) bool   { return err != nil && KindOf(err) == KindNotFound }
func IsBadRequest(err error) bool { return err != nil && KindOf(err) == KindBadRequest }

// Status maps a kind to its HTTP status code.
func Status(k Kind) int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts any error into an echo.HTTPError carrying the matching
// status code and a human-readable detail.
func HTTPError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he
	}
	return echo.NewHTTPError(Status(KindOf(err)), err.Error()).SetInternal(err)
}

// ErrorHandler renders errors as {"detail": "..."} bodies.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he := HTTPError(err)
	detail := fmt.Sprintf("%v", he.Message)
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(he.Code)
		return
	}
	_ = c.JSON(he.Code, map[string]string{"detail": detail})
}
