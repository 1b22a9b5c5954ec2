package hospital

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/memorysinkhonde/cad-Backend/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/auth/hospitals/names", h.Names)
}

func (h *Handler) Names(c echo.Context) error {
	names, err := h.svc.Names(c.Request().Context())
	if err != nil {
		return apperr.HTTP(err, "Failed to load hospital names")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"hospital_names": names})
}
