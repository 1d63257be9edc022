// Package health serves GET /healthz.
package health

import (
	"net/http"

	"github.com/dropDatabas3/postmesh/internal/http/errors"
	"github.com/dropDatabas3/postmesh/internal/http/helpers"
	svc "github.com/dropDatabas3/postmesh/internal/http/services/health"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

type HealthController struct {
	service svc.HealthService
}

func NewHealthController(service svc.HealthService) *HealthController {
	return &HealthController{service: service}
}

// Healthz answers 200 while every critical dependency is reachable and 503 otherwise.
func (c *HealthController) Healthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		errors.WriteError(w, errors.ErrMethodNotAllowed)
		return
	}
	resp := c.service.Check(r.Context())

	status := http.StatusOK
	if resp.Status == "unavailable" {
		status = http.StatusServiceUnavailable
	}
	if resp.Version != "" {
		w.Header().Set("X-Service-Version", resp.Version)
	}
	logger.From(r.Context()).Debug("health check completed",
		logger.String("status", resp.Status),
		logger.Int("components_count", len(resp.Components)))
	helpers.WriteJSON(w, status, resp)
}
