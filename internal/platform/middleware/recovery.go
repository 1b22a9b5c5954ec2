package middleware

import (
	"fmt"
	"net/http"
	"runtime"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/auth"
)

const maxStack = 4 << 10

// Recovery turns a handler panic into a 500 and logs the stack together with
// the request and the caller, when one is authenticated.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				stack := make([]byte, maxStack)
				stack = stack[:runtime.Stack(stack, false)]

				req := c.Request()
				ev := logger.Error().
					Str("method", req.Method).
					Str("path", req.URL.Path).
					Str("panic", fmt.Sprint(r)).
					Bytes("stack", stack)
				if rid, ok := c.Get("request_id").(string); ok {
					ev = ev.Str("request_id", rid)
				}
				if id, ok := auth.IdentityFromContext(req.Context()); ok {
					ev = ev.Int64("user_id", id.UserID).Str("role", id.Role)
				}
				ev.Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, "Internal server error")
			}()
			return next(c)
		}
	}
}
