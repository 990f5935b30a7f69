package handlers

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/akinalp/sohbet/pkg"
	"go.uber.org/zap"
)

// HealthHandler, liveness endpoint'i.
type HealthHandler struct {
	db *sql.DB
}

// NewHealthHandler, constructor.
func NewHealthHandler(db *sql.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz godoc
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		zap.S().Warnw("[health] database ping failed", "error", err)
		pkg.ErrorWithMessage(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	pkg.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
