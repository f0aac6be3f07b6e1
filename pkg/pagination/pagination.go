package pagination

import (
	"math"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Params holds 1-based page pagination extracted from a request.
type Params struct {
	Page  int
	Limit int
}

// FromContext extracts page and limit query parameters from the echo context.
// Missing, non-numeric or non-positive values fall back to the defaults.
func FromContext(c echo.Context) Params {
	return Parse(c.QueryParam("page"), c.QueryParam("limit"))
}

// Parse builds Params from raw query values.
func Parse(page, limit string) Params {
	p, err := strconv.Atoi(page)
	if err != nil || p <= 0 {
		p = DefaultPage
	}

	l, err := strconv.Atoi(limit)
	if err != nil || l <= 0 {
		l = DefaultLimit
	}
	if l > MaxLimit {
		l = MaxLimit
	}
	// Offset()+Limit must stay within int.
	if p > math.MaxInt/l {
		p = math.MaxInt / l
	}

	return Params{Page: p, Limit: l}
}

// Offset returns the zero-based row offset of the page.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset()+p.Limit < total
}

// TotalPages returns ceil(total / limit). A zero total yields zero pages.
func TotalPages(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// Page wraps a paginated list response in the dashboard's envelope.
type Page struct {
	TotalPages  int `json:"totalPages"`
	CurrentPage int `json:"currentPage"`
	TotalCount  int `json:"totalCount"`
}

func NewPage(p Params, total int) Page {
	return Page{
		TotalPages:  TotalPages(total, p.Limit),
		CurrentPage: p.Page,
		TotalCount:  total,
	}
}
