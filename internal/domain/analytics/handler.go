package analytics

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/docavailable/admin-api/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin"))
	g.GET("/analytics", h.GetDashboard)
}

// GetDashboard answers ?range=1month|3months|6months|1year. ?refresh=true
// bypasses the cached copy.
func (h *Handler) GetDashboard(c echo.Context) error {
	refresh := c.QueryParam("refresh") == "true"
	return c.JSON(http.StatusOK, h.svc.Dashboard(c.Request().Context(), c.QueryParam("range"), refresh))
}
