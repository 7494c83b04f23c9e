package caretaker

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/medtrack/medtrack/internal/domain/medlog"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/websocket"
)

const snapshotFrame = "snapshot"

type Handler struct {
	svc      *Service
	hub      *websocket.Hub
	upgrader *websocket.Upgrader
	logger   zerolog.Logger
}

func NewHandler(svc *Service, hub *websocket.Hub, upgrader *websocket.Upgrader, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, hub: hub, upgrader: upgrader, logger: logger}
}

// RegisterRoutes mounts the request/response endpoints. They run inside the
// per-request database session.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/caretaker/patients", h.ListPatients)
	api.GET("/caretaker/patients/:id/logs", h.PatientLogs)
}

// RegisterLiveRoutes mounts the WebSocket endpoint. It must not run inside
// the per-request database session because the stream outlives the initial
// load.
func (h *Handler) RegisterLiveRoutes(api *echo.Group) {
	api.GET("/caretaker/patients/:id/logs/live", h.LiveLogs)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, auth.ErrNoSession):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrNotLinked):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}

func (h *Handler) ListPatients(c echo.Context) error {
	ctx := c.Request().Context()
	patients, err := h.svc.ListPatients(ctx, auth.SessionFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, patients)
}

func (h *Handler) PatientLogs(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	year, month, err := medlog.ParseMonth(c.QueryParam("year"), c.QueryParam("month"), h.svc.Today())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	snap, err := h.svc.PatientLogs(ctx, auth.SessionFromContext(ctx), patientID, year, month)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

// LiveLogs sends a snapshot when the stream opens and after every applied
// change. Authorisation and the initial load happen before the upgrade so
// failures are plain HTTP errors.
func (h *Handler) LiveLogs(c echo.Context) error {
	patientID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}

	ctx := c.Request().Context()
	view, err := h.svc.OpenLiveView(ctx, auth.SessionFromContext(ctx), patientID)
	if err != nil {
		return httpError(err)
	}
	defer view.Close()

	conn, err := h.upgrader.Upgrade(c)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return nil
	}
	stream := h.hub.Attach(conn, "patient/"+patientID.String())
	defer stream.Close()

	if err := stream.Send(snapshotFrame, view.Snapshot()); err != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stream.Done():
			cancel()
		case <-runCtx.Done():
		}
	}()

	err = view.Run(runCtx, func(s Snapshot) error {
		return stream.Send(snapshotFrame, s)
	})
	if err != nil && !errors.Is(err, websocket.ErrStreamClosed) {
		h.logger.Debug().Err(err).Str("stream_id", stream.ID).Msg("live stream ended")
	}
	return nil
}
