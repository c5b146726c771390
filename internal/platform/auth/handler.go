package auth

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mango/reabilita/internal/platform/apperr"
)

type Handler struct {
	verifier Verifier
	issuer   Issuer
}

func NewHandler(verifier Verifier, issuer Issuer) *Handler {
	return &Handler{verifier: verifier, issuer: issuer}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/signin", h.SignIn)
}

type signInRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) SignIn(c echo.Context) error {
	var req signInRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTPError(apperr.BadRequest("invalid request body"))
	}
	if err := h.verifier.Verify(c.Request().Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return apperr.HTTPError(apperr.BadRequest("Invalid credentials"))
		}
		return apperr.HTTPError(apperr.Internal(err, "Error verifying credentials"))
	}
	token, err := h.issuer.Issue(req.Username)
	if err != nil {
		return apperr.HTTPError(apperr.Internal(err, "Error issuing token"))
	}
	return c.JSON(http.StatusOK, map[string]string{"token": token})
}
