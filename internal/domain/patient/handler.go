package patient

import (
	"net/http"

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
	api.GET("/pacientes", h.List)
	api.POST("/pacientes", h.Create)
	api.GET("/pacientes/:id", h.Get)
	api.DELETE("/pacientes/:id", h.Delete)
}

func (h *Handler) List(c echo.Context) error {
	patients, err := h.svc.List(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, patients)
}

type createRequest struct {
	Nome  string `json:"nome"`
	Idade int    `json:"idade"`
	Sexo  string `json:"sexo"`
}

func (h *Handler) Create(c echo.Context) error {
	var req createRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTPError(apperr.BadRequest("invalid patient body: %v", err))
	}
	p := &Patient{Nome: req.Nome, Idade: req.Idade, Sexo: req.Sexo}
	if err := h.svc.Create(c.Request().Context(), p); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Patient created successfully!",
		"patient": record{Nome: p.Nome, Idade: p.Idade, Sexo: p.Sexo},
		"id":      p.ID,
	})
}

func (h *Handler) Get(c echo.Context) error {
	id, err := store.KeyParam(c, "id")
	if err != nil {
		return apperr.HTTPError(err)
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) Delete(c echo.Context) error {
	id, err := store.KeyParam(c, "id")
	if err != nil {
		return apperr.HTTPError(err)
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Patient deleted successfully"})
}
