package live

import (
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/mango/reabilita/internal/platform/apperr"
	"github.com/mango/reabilita/internal/platform/store"
	"github.com/mango/reabilita/internal/platform/websocket"
)

type Handler struct {
	streamer *Streamer
	hub      *websocket.Hub
	upgrader *websocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(streamer *Streamer, hub *websocket.Hub, upgrader *websocket.Upgrader, logger zerolog.Logger) *Handler {
	return &Handler{streamer: streamer, hub: hub, upgrader: upgrader, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/ws/:id", h.Stream)
	api.GET("/ws/:id/watch", h.Watch)
}

// Stream upgrades the request and runs a live session on it. The socket is
// closed without an error frame when the session ends.
func (h *Handler) Stream(c echo.Context) error {
	patientID, err := store.KeyParam(c, "id")
	if err != nil {
		return apperr.HTTPError(err)
	}
	conn, err := h.upgrader.Upgrade(c)
	if err != nil {
		// the upgrader has already written the handshake error
		return nil
	}
	defer conn.Close()

	if err := h.streamer.Run(c.Request().Context(), conn, patientID); err != nil {
		h.logger.Debug().Err(err).Str("patient_id", patientID).Msg("live session ended with error")
	}
	return nil
}

// Watch attaches a read-only viewer to a patient's live frames.
func (h *Handler) Watch(c echo.Context) error {
	patientID, err := store.KeyParam(c, "id")
	if err != nil {
		return apperr.HTTPError(err)
	}
	// as in Stream, a failed handshake has already been answered
	_ = h.hub.Serve(h.upgrader, c, Topic(patientID))
	return nil
}
