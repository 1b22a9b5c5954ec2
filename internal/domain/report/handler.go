package report

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/auth"
	"github.com/memorysinkhonde/cad-Backend/internal/platform/validate"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	doctor := api.Group("/doctor", auth.RequireRole(auth.RoleDoctor))
	doctor.GET("/patients/export", h.ExportAssignedPatients)
	doctor.POST("/patients/:id/report", h.SendPatientReport)
}

type sendReportRequest struct {
	Email string `json:"email" validate:"required,email"`
}

func (h *Handler) SendPatientReport(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	var req sendReportRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return apperr.HTTP(err, "Server error while sending report.")
	}
	ctx := c.Request().Context()
	msg, err := h.svc.SendPatientReport(ctx, auth.UserIDFromContext(ctx), id, req.Email)
	if err != nil {
		return apperr.HTTP(err, "Server error while sending report.")
	}
	return c.JSON(http.StatusOK, map[string]string{"message": msg})
}

func (h *Handler) ExportAssignedPatients(c echo.Context) error {
	ctx := c.Request().Context()
	data, err := h.svc.ExportAssignedPatients(ctx, auth.UserIDFromContext(ctx))
	if err != nil {
		return apperr.HTTP(err, "Failed to export patients")
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="assigned_patients.xlsx"`)
	return c.Blob(http.StatusOK, xlsxContentType, data)
}
