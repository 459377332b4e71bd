package httpd

import (
	"context"
	"net/http"
	"time"

	"github.com/swdgrade/similarity-service/pkg/utils"
)

// HealthChecker reports whether the service's storage is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	code := http.StatusOK
	if err := h.health.Ping(r.Context()); err != nil {
		h.logger.Error().Err(err).Msg("Health check failed")
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	utils.WriteJSON(w, code, map[string]interface{}{
		"status":    status,
		"service":   "similarity-service",
		"timestamp": time.Now().UTC(),
		"version":   "1.0.0",
	})
}
