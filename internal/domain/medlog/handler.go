package medlog

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/domain/medication"
	"github.com/medtrack/medtrack/internal/platform/auth"
	"github.com/medtrack/medtrack/internal/platform/blobstore"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/medications/today", h.Today)
	api.POST("/medications/:id/taken", h.MarkTaken)
	api.GET("/medication-logs", h.ListMonth)
	api.DELETE("/medication-logs/:id", h.DeleteLog)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, auth.ErrNoSession):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, medication.ErrNotFound), errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, blobstore.ErrInvalidContentType), errors.Is(err, blobstore.ErrInvalidPath):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, blobstore.ErrFileTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

// ParseMonth reads the year and month query values, defaulting to the month
// containing today.
func ParseMonth(yearStr, monthStr string, today Day) (int, time.Month, error) {
	year, month := today.Year, today.Month
	if yearStr != "" {
		y, err := strconv.Atoi(yearStr)
		if err != nil || y < 1 || y > 9999 {
			return 0, 0, errors.New("invalid year")
		}
		year = y
	}
	if monthStr != "" {
		m, err := strconv.Atoi(monthStr)
		if err != nil || m < 1 || m > 12 {
			return 0, 0, errors.New("invalid month")
		}
		month = time.Month(m)
	}
	return year, month, nil
}

func (h *Handler) Today(c echo.Context) error {
	ctx := c.Request().Context()
	view, err := h.svc.TodayView(ctx, auth.SessionFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, view)
}

type markTakenResponse struct {
	Message string `json:"message"`
	Log     *Log   `json:"log"`
}

// MarkTaken accepts an optional multipart "photo" file.
func (h *Handler) MarkTaken(c echo.Context) error {
	medID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var photo *Photo
	fh, err := c.FormFile("photo")
	switch {
	case err == nil:
		if fh.Size > blobstore.MaxFileSize {
			return echo.NewHTTPError(http.StatusRequestEntityTooLarge, blobstore.ErrFileTooLarge.Error())
		}
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		defer f.Close()
		photo = &Photo{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get(echo.HeaderContentType),
			Body:        f,
		}
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
	default:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx := c.Request().Context()
	l, err := h.svc.MarkTaken(ctx, auth.SessionFromContext(ctx), medID, photo)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, markTakenResponse{Message: "Medication marked as taken!", Log: l})
}

func (h *Handler) ListMonth(c echo.Context) error {
	year, month, err := ParseMonth(c.QueryParam("year"), c.QueryParam("month"), h.svc.Today())
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	logs, err := h.svc.MonthLogs(ctx, auth.SessionFromContext(ctx), year, month)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, logs)
}

func (h *Handler) DeleteLog(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	ctx := c.Request().Context()
	if err := h.svc.DeleteLog(ctx, auth.SessionFromContext(ctx), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
