package adherence

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/domain/medlog"
	"github.com/medtrack/medtrack/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dashboard", h.GetDashboard)
}

// GetDashboard answers with the full dashboard or an error, never a partial
// one.
func (h *Handler) GetDashboard(c echo.Context) error {
	year, month, err := medlog.ParseMonth(c.QueryParam("year"), c.QueryParam("month"), h.svc.logs.Today())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	d, err := h.svc.Dashboard(ctx, auth.SessionFromContext(ctx), year, month)
	if err != nil {
		if errors.Is(err, auth.ErrNoSession) {
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, d)
}
