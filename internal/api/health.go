package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthHandler reports whether the backend can reach its database.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := "healthy"
	code := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check: database unreachable", "error", err)
		checks["database"] = "unreachable"
		status = "degraded"
		code = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	JSON(w, code, map[string]interface{}{
		"status": status,
		"checks": checks,
	})
}
