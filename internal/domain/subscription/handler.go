package subscription

import (
	"io"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/docavailable/admin-api/internal/platform/apperr"
	"github.com/docavailable/admin-api/internal/platform/auth"
	"github.com/docavailable/admin-api/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin"))
	g.GET("/subscriptions", h.ListSubscriptions)
	g.PATCH("/subscriptions/:id", h.UpdateCounters)
	g.PATCH("/subscriptions/:id/toggle", h.Toggle)
}

func parseID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("Invalid subscription ID")
	}
	return id, nil
}

func (h *Handler) ListSubscriptions(c echo.Context) error {
	f := Filter{Search: c.QueryParam("search"), Status: c.QueryParam("status")}
	listing, err := h.svc.List(c.Request().Context(), f, pagination.FromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"subscriptions": listing.Items,
		"totalPages":    listing.TotalPages,
		"currentPage":   listing.CurrentPage,
		"totalCount":    listing.TotalCount,
	})
}

func (h *Handler) UpdateCounters(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return apperr.Invalid("Invalid request body")
	}

	out, err := h.svc.UpdateCounters(c.Request().Context(), id, body)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":      "Subscription updated successfully",
		"subscription": out,
	})
}

type toggleRequest struct {
	IsActive *bool `json:"is_active"`
}

func (h *Handler) Toggle(c echo.Context) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}
	var body toggleRequest
	if err := c.Bind(&body); err != nil {
		return apperr.Invalid("Invalid request body")
	}
	if body.IsActive == nil {
		return apperr.Invalid("is_active is required")
	}

	out, err := h.svc.SetActive(c.Request().Context(), id, *body.IsActive)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message":      "Subscription status updated successfully",
		"subscription": out,
	})
}
