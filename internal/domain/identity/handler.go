package identity

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/medtrack/medtrack/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.POST("/signup", h.SignUp)
	g.POST("/signin", h.SignIn)
	g.POST("/signout", h.SignOut)
	g.GET("/session", h.GetSession)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidEmail), errors.Is(err, ErrPasswordRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, ErrEmailTaken):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) SignUp(c echo.Context) error {
	var in Credentials
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.SignUp(c.Request().Context(), in.Email, in.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, sess)
}

func (h *Handler) SignIn(c echo.Context) error {
	var in Credentials
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	sess, err := h.svc.SignIn(c.Request().Context(), in.Email, in.Password)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sess)
}

func (h *Handler) SignOut(c echo.Context) error {
	h.svc.SignOut(auth.SessionFromContext(c.Request().Context()))
	return c.NoContent(http.StatusNoContent)
}

type sessionResponse struct {
	User *User `json:"user"`
	// Loading is always false; the server answers once the lookup is done.
	Loading bool `json:"loading"`
}

// GetSession reports the signed-in user, or null.
func (h *Handler) GetSession(c echo.Context) error {
	ctx := c.Request().Context()
	u, err := h.svc.CurrentUser(ctx, auth.SessionFromContext(ctx))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sessionResponse{User: u})
}
