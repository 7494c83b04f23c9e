package medication

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/medications", h.ListMedications)
	api.GET("/medications/frequencies", h.ListFrequencies)
	api.POST("/medications", h.AddMedication)
	api.PUT("/medications/:id", h.EditMedication)
	api.DELETE("/medications/:id", h.DeleteMedication)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, auth.ErrNoSession):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrRequiredFields), errors.Is(err, ErrInvalidFrequency):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrConfirmationRequired):
		return echo.NewHTTPError(http.StatusPreconditionRequired, err.Error())
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) ListMedications(c echo.Context) error {
	ctx := c.Request().Context()
	items, err := h.svc.List(ctx, auth.SessionFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListFrequencies(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"frequencies": Frequencies,
		"default":     DefaultFrequency,
	})
}

type mutationResponse struct {
	Message    string      `json:"message"`
	Medication *Medication `json:"medication,omitempty"`
}

func (h *Handler) AddMedication(c echo.Context) error {
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	m, err := h.svc.Add(ctx, auth.SessionFromContext(ctx), in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, mutationResponse{Message: "Medication added!", Medication: m})
}

func (h *Handler) EditMedication(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var in Input
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	m, err := h.svc.Edit(ctx, auth.SessionFromContext(ctx), id, in)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, mutationResponse{Message: "Medication updated", Medication: m})
}

func (h *Handler) DeleteMedication(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	confirmed, _ := strconv.ParseBool(c.QueryParam("confirm"))

	ctx := c.Request().Context()
	if err := h.svc.Delete(ctx, auth.SessionFromContext(ctx), id, confirmed); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, mutationResponse{Message: "Medication Deleted"})
}
