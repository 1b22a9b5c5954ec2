package inference

import (
	"errors"
	"net/http"
	"strconv"

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
	clinical := auth.RequireRole(auth.RoleNurse, auth.RoleDoctor)
	api.POST("/predict/:patient_id", h.PredictImage, clinical)
	api.POST("/predict-cad", h.PredictCAD, clinical)
}

func (h *Handler) PredictImage(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("patient_id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid patient id")
	}
	ctx := c.Request().Context()
	res, err := h.svc.PredictImage(ctx, auth.UserIDFromContext(ctx), id)
	if err != nil {
		var rej *Rejection
		if errors.As(err, &rej) {
			return c.JSON(http.StatusUnprocessableEntity, rej)
		}
		return apperr.HTTP(err, "Patient workflow processing failed")
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) PredictCAD(c echo.Context) error {
	var req CADRequest
	if err := validate.BindAndValidate(c, &req); err != nil {
		return apperr.HTTP(err, "Prediction failed")
	}
	res, err := h.svc.PredictCAD(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err, "Prediction failed")
	}
	return c.JSON(http.StatusOK, res)
}
