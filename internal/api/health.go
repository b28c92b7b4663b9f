package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type healthHandler struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// hello handles GET /health: liveness probe, always 200.
func (h *healthHandler) hello(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"message": "Hello World"})
}

// readiness handles GET /ready: 200 only when the database is reachable.
func (h *healthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable,
			map[string]any{"status": "unavailable", "reason": "database not configured"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.pool.Ping(ctx); err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable,
			map[string]any{"status": "unavailable", "reason": "database unreachable"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
