package registration

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/validate"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/auth")
	g.POST("/sign-up", h.SignUp)
	g.POST("/verify-email", h.VerifyEmail)
}

func (h *Handler) SignUp(c echo.Context) error {
	var req SignUpRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return apperr.HTTP(err, "Registration process failed")
	}
	resp, err := h.svc.SignUp(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err, "Registration process failed")
	}
	return c.JSON(http.StatusCreated, resp)
}

func (h *Handler) VerifyEmail(c echo.Context) error {
	var req VerifyRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return apperr.HTTP(err, "Verification process failed")
	}
	resp, err := h.svc.VerifyEmail(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err, "Verification process failed")
	}
	return c.JSON(http.StatusOK, resp)
}
