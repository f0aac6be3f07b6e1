package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/docavailable/admin-api/internal/platform/apperr"
)

// RequestTimeout bounds each request with a context deadline. Store calls
// observe the deadline; a handler that gives up because of it is reported as
// a retriable Unavailable error.
func RequestTimeout(timeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if timeout <= 0 {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				var ae *apperr.Error
				if !errors.As(err, &ae) || ae.Kind == apperr.KindStore {
					return &apperr.Error{Kind: apperr.KindUnavailable, Message: "request timed out", Err: err}
				}
			}
			return err
		}
	}
}
