package dashboard

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/nurse/dashboard", h.NurseOverview, auth.RequireRole(auth.RoleNurse))

	doctor := api.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/dashboard", h.DoctorDashboard)
	doctor.GET("/patients", h.AssignedPatients)
}

func (h *Handler) NurseOverview(c echo.Context) error {
	ctx := c.Request().Context()
	o, err := h.svc.NurseOverview(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err, "Failed to fetch dashboard data")
	}
	return c.JSON(http.StatusOK, o)
}

func (h *Handler) DoctorDashboard(c echo.Context) error {
	ctx := c.Request().Context()
	d, err := h.svc.DoctorDashboard(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err, "Failed to fetch dashboard data")
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) AssignedPatients(c echo.Context) error {
	ctx := c.Request().Context()
	a, err := h.svc.AssignedPatients(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err, "Failed to fetch dashboard data")
	}
	return c.JSON(http.StatusOK, a)
}
