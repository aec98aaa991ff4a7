package health

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/anurag-sv/bazaar-api/internal/common"
)

// Handler exposes liveness and readiness probes.
type Handler struct {
	Pool  *pgxpool.Pool
	Redis *redis.Client
}

// Livez reports that the process is up.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports whether the backing services answer.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"postgres": "ok", "redis": "ok"}
	healthy := true
	if h.Pool != nil {
		if err := h.Pool.Ping(ctx); err != nil {
			checks["postgres"] = err.Error()
			healthy = false
		}
	}
	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = err.Error()
			healthy = false
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, map[string]any{"checks": checks})
}
