package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"

	"github.com/docavailable/admin-api/internal/platform/apperr"
)

type contextKey string

const (
	DBConnKey contextKey = "db_conn"
	DBTxKey   contextKey = "db_tx"
)

// Acquirer hands out pooled connections. *pgxpool.Pool satisfies it.
type Acquirer interface {
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
}

// ConnMiddleware acquires one pooled connection per request, bounded by
// acquireTimeout, and releases it on every exit path. Handlers and repos
// reach it through ConnFromContext.
func ConnMiddleware(pool Acquirer, acquireTimeout time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()

			actx, cancel := context.WithTimeout(ctx, acquireTimeout)
			conn, err := pool.Acquire(actx)
			cancel()
			if err != nil {
				return &apperr.Error{Kind: apperr.KindUnavailable, Message: "database unavailable", Err: err}
			}
			defer conn.Release()

			ctx = context.WithValue(ctx, DBConnKey, conn)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// ConnFromContext retrieves the request-scoped database connection from context.
func ConnFromContext(ctx context.Context) *pgxpool.Conn {
	conn, _ := ctx.Value(DBConnKey).(*pgxpool.Conn)
	return conn
}

// Detach returns a context that no longer carries the request's connection
// or transaction. Work that outlives the request must use it so it never
// touches a connection that has been released back to the pool.
func Detach(ctx context.Context) context.Context {
	ctx = context.WithoutCancel(ctx)
	ctx = context.WithValue(ctx, DBConnKey, (*pgxpool.Conn)(nil))
	ctx = context.WithValue(ctx, DBTxKey, nil)
	return ctx
}
