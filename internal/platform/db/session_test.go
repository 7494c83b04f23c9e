package db

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestConnFromContext_Empty(t *testing.T) {
	if ConnFromContext(context.Background()) != nil {
		t.Error("expected nil conn for empty context")
	}
	if TxFromContext(context.Background()) != nil {
		t.Error("expected nil tx for empty context")
	}
}

type stubQueryable struct{ Queryable }

func TestConn_FallsBackToPool(t *testing.T) {
	fallback := &stubQueryable{}
	got := Conn(context.Background(), fallback)
	if got != fallback {
		t.Error("expected fallback handle when context has no conn or tx")
	}
}

func TestSessionMiddleware_AnonymousPassesThrough(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	called := false
	// A nil pool is never touched when there is no user.
	mw := SessionMiddleware(nil, func(c echo.Context) string { return "" })
	err := mw(func(c echo.Context) error {
		called = true
		if ConnFromContext(c.Request().Context()) != nil {
			t.Error("expected no scoped conn for anonymous request")
		}
		return c.NoContent(http.StatusOK)
	})(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("expected next handler to be called")
	}
}
