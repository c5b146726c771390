package session

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
	api.GET("/pacientes/:id/historico", h.History)
	api.GET("/pacientes/:id/data", h.Graph)
	api.GET("/pacientes/:id/sessao/:sid", h.Details)
	api.POST("/pacientes/:id/sessao/:sid", h.Append)
	api.GET("/pacientes/:id/sessao/:sid/flex", h.Flex)
	api.GET("/pacientes/:id/sessao/:sid/emg", h.EMG)

	// Legacy dashboard and EMG test client routes.
	api.POST("/save-sensor-data/:id", h.SaveSensorData)
	api.POST("/emg", h.ReceiveEMG)
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

var savedResponse = map[string]string{"message": "Sensor data saved successfully"}

func (h *Handler) History(c echo.Context) error {
	patientID, err := store.KeyParam(c, "id")
	if err != nil {
		return apperr.HTTPError(err)
	}
	history, err := h.svc.History(c.Request().Context(), patientID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, history)
}

func (h *Handler) Graph(c echo.Context) error {
	patientID, err := store.KeyParam(c, "id")
	if err != nil {
		return apperr.HTTPError(err)
	}
	points, err := h.svc.Graph(c.Request().Context(), patientID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, points)
}

func (h *Handler) Details(c echo.Context) error {
	patientID, sessionID, err := sessionParams(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	d, err := h.svc.Details(c.Request().Context(), patientID, sessionID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) Append(c echo.Context) error {
	patientID, sessionID, err := sessionParams(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	var r Reading
	if err := c.Bind(&r); err != nil {
		return apperr.HTTPError(apperr.BadRequest("invalid sensor data: %v", err))
	}
	if err := h.svc.Append(c.Request().Context(), patientID, sessionID, r); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, savedResponse)
}

func (h *Handler) Flex(c echo.Context) error {
	patientID, sessionID, err := sessionParams(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	values, err := h.svc.FlexSeries(c.Request().Context(), patientID, sessionID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, values)
}

func (h *Handler) EMG(c echo.Context) error {
	patientID, sessionID, err := sessionParams(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	values, err := h.svc.EMGSeries(c.Request().Context(), patientID, sessionID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, values)
}

type saveSensorDataRequest struct {
	SessionID string `json:"session_id"`
	Reading
}

func (h *Handler) SaveSensorData(c echo.Context) error {
	patientID, err := store.KeyParam(c, "id")
	if err != nil {
		return apperr.HTTPError(err)
	}
	var req saveSensorDataRequest
	if err := c.Bind(&req); err != nil {
		return apperr.HTTPError(apperr.BadRequest("invalid sensor data: %v", err))
	}
	if !store.ValidKey(req.SessionID) {
		return apperr.HTTPError(apperr.BadRequest("invalid session_id %q", req.SessionID))
	}
	if err := h.svc.Append(c.Request().Context(), patientID, req.SessionID, req.Reading); err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, savedResponse)
}

type emgBatch struct {
	Data []int `json:"data"`
}

func (h *Handler) ReceiveEMG(c echo.Context) error {
	var req emgBatch
	if err := c.Bind(&req); err != nil {
		return apperr.HTTPError(apperr.BadRequest("invalid EMG batch: %v", err))
	}
	h.svc.RecordEMGBatch(req.Data)
	return c.JSON(http.StatusOK, map[string]string{"message": "Dados do EMG recebidos com sucesso"})
}
