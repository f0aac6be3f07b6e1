package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	EmptyAcquires   int64  `json:"empty_acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// StatsFrom converts a pgxpool.Stat snapshot.
func StatsFrom(stat *pgxpool.Stat) *PoolStats {
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		EmptyAcquires:   stat.EmptyAcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0 && stat.AcquiredConns() < stat.MaxConns(),
	}
}

// Pinger is the part of the pool the health endpoint needs.
type Pinger interface {
	Ping(ctx context.Context) error
	Stat() *pgxpool.Stat
}

// HealthHandler pings the database and reports pool saturation.
func HealthHandler(pool Pinger, timeout time.Duration) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), timeout)
		defer cancel()

		err := pool.Ping(ctx)
		stats := StatsFrom(pool.Stat())

		if err != nil {
			stats.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  "database ping failed",
				"pool":   stats,
			})
		}

		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "healthy",
			"pool":   stats,
		})
	}
}

// LivenessHandler answers without touching the database.
func LivenessHandler() echo.HandlerFunc {
	started := time.Now()
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "ok",
			"uptime": time.Since(started).Truncate(time.Second).String(),
		})
	}
}
