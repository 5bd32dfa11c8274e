package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolStats is the connection pool snapshot reported by the health check.
type PoolStats struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
	}
}

// Pinger is anything with a context-aware health check.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler pings each named dependency and reports 503 if any fails.
// pool may be nil when PostgreSQL is not configured.
func HealthHandler(pool *pgxpool.Pool, deps map[string]Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		status := http.StatusOK
		checks := make(map[string]string, len(deps)+1)
		for name, p := range deps {
			checks[name] = check(ctx, p, &status)
		}
		body := map[string]interface{}{"checks": checks}
		if pool != nil {
			checks["postgres"] = check(ctx, pool, &status)
			body["pool"] = GetPoolStats(pool)
		}
		if status == http.StatusOK {
			body["status"] = "healthy"
		} else {
			body["status"] = "unhealthy"
		}
		return c.JSON(status, body)
	}
}

func check(ctx context.Context, p Pinger, status *int) string {
	if err := p.Ping(ctx); err != nil {
		*status = http.StatusServiceUnavailable
		return err.Error()
	}
	return "ok"
}
