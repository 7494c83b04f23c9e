package db

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	DBConnKey contextKey = "db_conn"
	DBTxKey   contextKey = "db_tx"
)

// UserSetting is the session variable read by the row level security
// policies. An empty value is the system context and sees every row.
const UserSetting = "app.user_id"

// Queryable is the subset of pgx shared by pools, connections and transactions.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// ConnFromContext retrieves the user-scoped connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// TxFromContext retrieves an open transaction from context.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(DBTxKey).(pgx.Tx)
	return tx
}

// WithTx stores tx in ctx so repositories join it.
func WithTx(ctx context.Context, tx pgx.Tx) context.Context {
	return context.WithValue(ctx, DBTxKey, tx)
}

// Conn picks the innermost handle available in ctx: transaction, then the
// user-scoped connection, then the fallback pool.
func Conn(ctx context.Context, fallback Queryable) Queryable {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := ConnFromContext(ctx); c != nil {
		return c
	}
	return fallback
}

// WithUserConn runs fn with a pooled connection whose row level security
// identity is userID. The identity is cleared before the connection goes back
// to the pool; a connection that cannot be cleared is closed instead.
func WithUserConn(ctx context.Context, pool *pgxpool.Pool, userID string, fn func(ctx context.Context) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	if _, err := conn.Exec(ctx, "SELECT set_config($1, $2, false)", UserSetting, userID); err != nil {
		conn.Release()
		return fmt.Errorf("set session user: %w", err)
	}

	defer func() {
		// The request context may already be cancelled here.
		if _, err := conn.Exec(context.Background(), "SELECT set_config($1, '', false)", UserSetting); err != nil {
			_ = conn.Hijack().Close(context.Background())
			return
		}
		conn.Release()
	}()

	return fn(context.WithValue(ctx, DBConnKey, conn))
}

// SessionMiddleware scopes every authenticated request to its own connection
// carrying the caller's identity. Requests without a user pass through and use
// the pool.
func SessionMiddleware(pool *pgxpool.Pool, userID func(c echo.Context) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			uid := userID(c)
			if uid == "" {
				return next(c)
			}

			var handlerErr error
			err := WithUserConn(c.Request().Context(), pool, uid, func(ctx context.Context) error {
				c.SetRequest(c.Request().WithContext(ctx))
				handlerErr = next(c)
				return nil
			})
			if err != nil {
				return echo.NewHTTPError(http.StatusServiceUnavailable, "database unavailable")
			}
			return handlerErr
		}
	}
}
