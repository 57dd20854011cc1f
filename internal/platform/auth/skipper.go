package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths lists route paths reachable without credentials.
var publicPaths = map[string]bool{
	"/health":               true,
	"/health/db":            true,
	"/api/v1/auth/register": true,
	"/api/v1/auth/login":    true,
}

// AuthSkipper returns true for requests whose path should skip authentication.
// Pass it as the Skipper on JWTConfig.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given route path bypasses auth.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
