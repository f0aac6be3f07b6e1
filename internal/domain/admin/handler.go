package admin

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
	g.GET("/admins", h.ListAdmins)
}

func (h *Handler) ListAdmins(c echo.Context) error {
	admins, err := h.svc.ListActive(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"admins":     admins,
		"totalCount": len(admins),
	})
}
