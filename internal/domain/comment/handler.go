package comment

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"github.com/mango/reabilita/internal/platform/apperr"
	"github.com/mango/reabilita/internal/platform/store"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/pacientes/:id/sessao/:sid/comentarios", h.List)
	api.POST("/pacientes/:id/sessao/:sid/comentarios", h.Add)
	api.DELETE("/pacientes/:id/sessao/:sid/comentarios/:ref", h.Delete)
}

func sessionParams(c echo.Context) (patientID, sessionID string, err error) {
	if patientID, err = store.KeyParam(c, "id"); err != nil {
		return "", "", err
	}
	if sessionID, err = store.KeyParam(c, "sid"); err != nil {
		return "", "", err
	}
	return patientID, sessionID, nil
}

func (h *Handler) List(c echo.Context) error {
	patientID, sessionID, err := sessionParams(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	comments, err := h.svc.List(c.Request().Context(), patientID, sessionID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, comments)
}

type addRequest struct {
	Comment string `json:"comment"`
}

func (h *Handler) Add(c echo.Context) error {
	patientID, sessionID, err := sessionParams(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	var req addRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTPError(apperr.BadRequest("invalid comment body: %v", err))
	}
	added, err := h.svc.Add(c.Request().Context(), patientID, sessionID, req.Comment)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{
		"message": "Comment added successfully",
		"id":      added.ID,
	})
}

// Delete accepts either a comment id or its timestamp as :ref.
func (h *Handler) Delete(c echo.Context) error {
	patientID, sessionID, err := sessionParams(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	ref := c.Param("ref")
	if unescaped, err := url.PathUnescape(ref); err == nil {
		ref = unescaped
	}
	if ref == "" {
		return apperr.HTTPError(apperr.BadRequest("comment reference is required"))
	}
	if err := h.svc.Delete(c.Request().Context(), patientID, sessionID, ref); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Comment deleted successfully"})
}
