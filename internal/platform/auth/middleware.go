package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey  contextKey = "user_id"
	SessionKey contextKey = "session"
)

// RevocationChecker is satisfied by *TokenRevocationStore.
type RevocationChecker interface {
	IsRevoked(jti string) bool
}

type JWTConfig struct {
	Tokens      *Tokens
	Revocations RevocationChecker
	// Skipper marks routes that work without a session. A valid token on
	// such a route is still attached to the context.
	Skipper func(c echo.Context) bool
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			optional := cfg.Skipper != nil && cfg.Skipper(c)

			tokenStr, err := bearerToken(c)
			if err != nil {
				if optional {
					return next(c)
				}
				return err
			}

			sess, err := cfg.Tokens.Parse(tokenStr)
			if err == nil && cfg.Revocations != nil && cfg.Revocations.IsRevoked(sess.TokenID) {
				err = ErrTokenRevoked
			}
			if err != nil {
				if optional {
					return next(c)
				}
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			c.SetRequest(c.Request().WithContext(WithSession(c.Request().Context(), sess)))
			return next(c)
		}
	}
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter used by WebSocket clients.
func bearerToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if q := c.QueryParam("access_token"); q != "" {
			return q, nil
		}
		return "", echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
	}
	return strings.TrimSpace(parts[1]), nil
}

// WithSession attaches sess to ctx.
func WithSession(ctx context.Context, sess *Session) context.Context {
	ctx = context.WithValue(ctx, SessionKey, sess)
	return context.WithValue(ctx, UserIDKey, sess.UserID)
}

func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(SessionKey).(*Session)
	return sess
}

func UserIDFromContext(ctx context.Context) string {
	uid, _ := ctx.Value(UserIDKey).(string)
	return uid
}

// EchoUserID adapts UserIDFromContext for middleware that takes an echo.Context.
func EchoUserID(c echo.Context) string {
	return UserIDFromContext(c.Request().Context())
}
