package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths are the route patterns reachable without a token: health
// checks and the account bootstrap endpoints.
var publicPaths = map[string]bool{
	"/health":                      true,
	"/health/db":                   true,
	"/api/v1/auth/sign-up":         true,
	"/api/v1/auth/verify-email":    true,
	"/api/v1/auth/sign-in":         true,
	"/api/v1/auth/refresh-token":   true,
	"/api/v1/auth/hospitals/names": true,
}

// AuthSkipper returns true for requests whose matched route is public.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
