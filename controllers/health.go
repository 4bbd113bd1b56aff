package controllers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"shophub/utils"
)

// HealthController reports liveness and storage reachability.
type HealthController struct {
	ping   func(ctx context.Context) error
	logger *slog.Logger
}

// NewHealthController takes the storage ping; nil means nothing to check.
func NewHealthController(ping func(ctx context.Context) error, logger *slog.Logger) *HealthController {
	return &HealthController{ping: ping, logger: logger}
}

func (hc *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	if hc.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := hc.ping(ctx); err != nil {
			hc.logger.Warn("health check failed", "error", err)
			utils.RespondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
