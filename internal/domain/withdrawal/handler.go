package withdrawal

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
	g.GET("/withdrawal-requests", h.ListRequests)
	g.PATCH("/withdrawal-requests/:id/status", h.UpdateStatus)
}

type statusRequest struct {
	Status      string       `json:"status"`
	CompletedBy auth.AdminID `json:"completed_by"`
}

// ListRequests returns every request unless page or limit is given.
func (h *Handler) ListRequests(c echo.Context) error {
	pg := pagination.Params{Page: 1}
	if c.QueryParam("page") != "" || c.QueryParam("limit") != "" {
		pg = pagination.FromContext(c)
	}
	listing, err := h.svc.List(c.Request().Context(), c.QueryParam("status"), pg)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"withdrawRequests": listing.Items,
		"totalCount":       listing.TotalCount,
		"totalPages":       listing.TotalPages,
		"currentPage":      listing.CurrentPage,
	})
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return apperr.Invalid("Invalid withdrawal request ID")
	}
	var body statusRequest
	if err := c.Bind(&body); err != nil {
		return apperr.Invalid("Invalid request body")
	}

	ctx := c.Request().Context()
	if err := h.svc.UpdateStatus(ctx, id, body.Status, string(body.CompletedBy), auth.EmailFromContext(ctx)); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"message": "Withdrawal request " + body.Status + " successfully",
		"status":  body.Status,
	})
}
