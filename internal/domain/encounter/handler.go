package encounter

import (
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
	g.GET("/encounters", h.ListEncounters)
	g.PATCH("/encounters/:id/status", h.UpdateEncounterStatus)

	// Paths and response keys the dashboard has always used.
	g.GET("/appointments", h.ListAppointments)
	g.PATCH("/appointments/:id/status", h.UpdateAppointmentStatus)
}

type statusRequest struct {
	Status     string `json:"status"`
	SourceType string `json:"source_type"`
}

func filterFromQuery(c echo.Context) Filter {
	return Filter{
		Search: c.QueryParam("search"),
		Status: c.QueryParam("status"),
		Type:   c.QueryParam("type"),
	}
}

func (h *Handler) list(c echo.Context, itemsKey string) error {
	listing, err := h.svc.ListEncounters(c.Request().Context(), filterFromQuery(c), pagination.FromContext(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		itemsKey:      listing.Items,
		"totalPages":  listing.TotalPages,
		"currentPage": listing.CurrentPage,
		"totalCount":  listing.TotalCount,
	})
}

func (h *Handler) ListEncounters(c echo.Context) error {
	return h.list(c, "items")
}

func (h *Handler) ListAppointments(c echo.Context) error {
	return h.list(c, "appointments")
}

func (h *Handler) updateStatus(c echo.Context, recordKey string) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperr.Invalid("Invalid encounter ID")
	}
	var body statusRequest
	if err := c.Bind(&body); err != nil {
		return apperr.Invalid("Invalid request body")
	}

	change, src, err := h.svc.UpdateStatus(c.Request().Context(), id, body.SourceType, body.Status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": src.Label() + " status updated successfully",
		recordKey: change,
	})
}

func (h *Handler) UpdateEncounterStatus(c echo.Context) error {
	return h.updateStatus(c, "encounter")
}

func (h *Handler) UpdateAppointmentStatus(c echo.Context) error {
	return h.updateStatus(c, "appointment")
}
