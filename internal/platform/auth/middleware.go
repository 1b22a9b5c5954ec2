package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

type contextKey string

const (
	UserIDKey    contextKey = "user_id"
	UserRolesKey contextKey = "user_roles"
	UserEmailKey contextKey = "user_email"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID int64
	Email  string
	Role   string
}

type JWTConfig struct {
	Issuer *TokenIssuer
	// Skipper bypasses authentication when it returns true.
	Skipper func(c echo.Context) bool
}

// JWTMiddleware authenticates requests with a bearer token. WebSocket clients
// that cannot set headers may pass the token in the "token" query parameter.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if cfg.Skipper != nil && cfg.Skipper(c) {
				return next(c)
			}

			tokenStr, err := extractToken(c)
			if err != nil {
				return err
			}

			claims, err := cfg.Issuer.Parse(tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid or expired token")
			}
			if claims.UserID == 0 || claims.Subject == "" || claims.Role == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token payload")
			}

			ctx := WithIdentity(c.Request().Context(), Identity{
				UserID: claims.UserID,
				Email:  claims.Subject,
				Role:   claims.Role,
			})
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}

func extractToken(c echo.Context) (string, error) {
	authHeader := c.Request().Header.Get("Authorization")
	if authHeader == "" {
		if q := c.QueryParam("token"); q != "" {
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

// WithIdentity stores id on ctx the same way JWTMiddleware does.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, id.UserID)
	ctx = context.WithValue(ctx, UserEmailKey, id.Email)
	ctx = context.WithValue(ctx, UserRolesKey, []string{id.Role})
	return ctx
}

func UserIDFromContext(ctx context.Context) int64 {
	uid, _ := ctx.Value(UserIDKey).(int64)
	return uid
}

func EmailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(UserEmailKey).(string)
	return email
}

func RolesFromContext(ctx context.Context) []string {
	roles, _ := ctx.Value(UserRolesKey).([]string)
	return roles
}

// IdentityFromContext returns the caller and whether one was authenticated.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id := Identity{
		UserID: UserIDFromContext(ctx),
		Email:  EmailFromContext(ctx),
	}
	if roles := RolesFromContext(ctx); len(roles) > 0 {
		id.Role = roles[0]
	}
	return id, id.UserID != 0
}
