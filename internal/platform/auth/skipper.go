package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication.
var publicPaths = map[string]bool{
	"/health":       true,
	"/health/db":    true,
	"/auth/signup":  true,
	"/auth/signin":  true,
	"/auth/session": true,
}

const publicStoragePrefix = "/storage/v1/object/public/"

// AuthSkipper reports whether the request may proceed without a token.
func AuthSkipper(c echo.Context) bool {
	return IsPublicPath(c.Request().URL.Path)
}

func IsPublicPath(path string) bool {
	return publicPaths[path] || strings.HasPrefix(path, publicStoragePrefix)
}
