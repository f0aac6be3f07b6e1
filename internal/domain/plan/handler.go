package plan

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/docavailable/admin-api/internal/platform/apperr"
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
	g.GET("/plans", h.ListPlans)
	g.PUT("/plans/:id", h.UpdatePlan)
	g.DELETE("/plans/:id", h.DeletePlan)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("Invalid plan ID")
	}
	return id, nil
}

func (h *Handler) ListPlans(c echo.Context) error {
	plans, err := h.svc.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"plans":      plans,
		"totalCount": len(plans),
	})
}

func (h *Handler) UpdatePlan(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperr.Invalid("Invalid request body")
	}

	p, err := h.svc.Update(c.Request().Context(), id, body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Plan updated successfully",
		"plan":    p,
	})
}

func (h *Handler) DeletePlan(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Plan deleted successfully"})
}
