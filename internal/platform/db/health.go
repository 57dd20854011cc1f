package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

// PoolStats represents database connection pool statistics.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

// GetPoolStats returns connection pool statistics.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// Check is a named store probe for the health endpoint. Stats is optional.
type Check struct {
	Driver string
	Ping   func(ctx context.Context) error
	Stats  func() any
}

// PostgresCheck probes a pgx pool and reports its pool statistics.
func PostgresCheck(pool *pgxpool.Pool) Check {
	return Check{
		Driver: "postgres",
		Ping:   pool.Ping,
		Stats:  func() any { return GetPoolStats(pool) },
	}
}

// HealthHandler returns a handler for the store health check endpoint.
func HealthHandler(check Check) echo.HandlerFunc {
	return func(c echo.Context) error {
		body := map[string]interface{}{"driver": check.Driver}
		if check.Stats != nil {
			body["pool"] = check.Stats()
		}

		if check.Ping != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
			defer cancel()

			if err := check.Ping(ctx); err != nil {
				if stats, ok := body["pool"].(*PoolStats); ok {
					stats.Healthy = false
				}
				body["status"] = "unhealthy"
				body["error"] = err.Error()
				return c.JSON(http.StatusServiceUnavailable, body)
			}
		}

		body["status"] = "healthy"
		return c.JSON(http.StatusOK, body)
	}
}
