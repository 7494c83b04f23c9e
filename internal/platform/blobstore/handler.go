package blobstore

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Handler serves stored objects on the public storage route.
type Handler struct {
	store ObjectStore
}

func NewHandler(store ObjectStore) *Handler {
	return &Handler{store: store}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET(PublicRoutePrefix+":bucket/*", h.handleDownload)
}

func (h *Handler) handleDownload(c echo.Context) error {
	rc, meta, err := h.store.Download(c.Request().Context(), c.Param("bucket"), c.Param("*"))
	if err != nil {
		switch {
		case errors.Is(err, ErrObjectNotFound):
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		case errors.Is(err, ErrInvalidPath):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	defer rc.Close()

	c.Response().Header().Set("ETag", `"`+meta.Hash+`"`)
	c.Response().Header().Set("Cache-Control", "public, max-age=60")
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}
