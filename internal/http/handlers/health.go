package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/carelane/scheduling-platform/pkg/logging"
)

// Pinger is anything with a connectivity check (pgx pools, redis clients).
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	db     Pinger
	cache  Pinger
	logger *logging.Logger
}

// NewHealthHandler creates a health handler. db and cache may be nil; nil
// dependencies are skipped during readiness.
func NewHealthHandler(db, cache Pinger, logger *logging.Logger) *HealthHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &HealthHandler{db: db, cache: cache, logger: logger}
}

// Health is the liveness probe.
// GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready is the readiness probe: it verifies the database and cache respond.
// GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	healthy := true
	if h.db != nil {
		checks["database"] = "ok"
		if err := h.db.Ping(ctx); err != nil {
			h.logger.Error("readiness: database ping failed", "error", err)
			checks["database"] = "unavailable"
			healthy = false
		}
	}
	if h.cache != nil {
		checks["cache"] = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn("readiness: cache ping failed", "error", err)
			checks["cache"] = "unavailable"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, checks)
}
