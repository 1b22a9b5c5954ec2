package identity

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/auth"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	authGroup := api.Group("/auth")
	authGroup.POST("/sign-in", h.SignIn)
	authGroup.POST("/refresh-token", h.RefreshToken)

	me := api.Group("/me", auth.RequireRole(auth.RoleNurse, auth.RoleDoctor))
	me.GET("", h.GetProfile)
	me.PUT("/password", h.ChangePassword)
	me.PUT("/profile", h.UpdateProfile)
	me.DELETE("", h.DeleteAccount)
}

type signInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	Token string `json:"token" validate:"required"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required"`
}

type deleteAccountRequest struct {
	Password string `json:"password" validate:"required"`
}

func (h *Handler) SignIn(c echo.Context) error {
	var req signInRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return apperr.HTTP(err, "Sign-in process failed")
	}
	resp, err := h.svc.SignIn(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return apperr.HTTP(err, "Sign-in process failed")
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) RefreshToken(c echo.Context) error {
	var req refreshRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return apperr.HTTP(err, "Failed to refresh token")
	}
	resp, err := h.svc.RefreshToken(c.Request().Context(), req.Token)
	if err != nil {
		return apperr.HTTP(err, "Failed to refresh token")
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetProfile(c echo.Context) error {
	p, err := h.svc.GetProfile(c.Request().Context(), auth.UserIDFromContext(c.Request().Context()))
	if err != nil {
		return apperr.HTTP(err, "Failed to fetch profile")
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ChangePassword(c echo.Context) error {
	var req changePasswordRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return apperr.HTTP(err, "Failed to change password")
	}
	ctx := c.Request().Context()
	if err := h.svc.ChangePassword(ctx, auth.UserIDFromContext(ctx), req.CurrentPassword, req.NewPassword); err != nil {
		return apperr.HTTP(err, "Failed to change password")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Password changed successfully"})
}

func (h *Handler) UpdateProfile(c echo.Context) error {
	var req ProfileUpdate
	if err := validate.BindAndValidate(c, &req); err != nil {
		return apperr.HTTP(err, "Failed to update profile")
	}
	ctx := c.Request().Context()
	p, emailChanged, err := h.svc.UpdateProfile(ctx, auth.UserIDFromContext(ctx), req)
	if err != nil {
		return apperr.HTTP(err, "Failed to update profile")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":                "Profile updated successfully",
		"profile":                p,
		"token_reissue_required": emailChanged,
	})
}

func (h *Handler) DeleteAccount(c echo.Context) error {
	var req deleteAccountRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return apperr.HTTP(err, "Failed to delete account")
	}
	ctx := c.Request().Context()
	res, err := h.svc.DeleteAccount(ctx, auth.UserIDFromContext(ctx), req.Password)
	if err != nil {
		return apperr.HTTP(err, "Failed to delete account")
	}
	return c.JSON(http.StatusOK, res)
}
