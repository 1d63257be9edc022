// Package health checks the dependencies of a running service.
package health

import (
	"context"
	"sort"
	"time"

	dto "github.com/dropDatabas3/postmesh/internal/http/dto/health"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// HealthService reports readiness.
type HealthService interface {
	Check(ctx context.Context) dto.HealthResponse
}

// Deps configures the service. Critical checks make the service unavailable when they
// fail; the others only mark their component.
type Deps struct {
	Service  string
	Version  string
	Critical map[string]Check
	Optional map[string]Check
	Timeout  time.Duration
}

type healthService struct {
	deps Deps
}

func NewHealthService(d Deps) HealthService {
	if d.Timeout <= 0 {
		d.Timeout = 2 * time.Second
	}
	return &healthService{deps: d}
}

func (s *healthService) Check(ctx context.Context) dto.HealthResponse {
	log := logger.From(ctx).With(logger.Component("health"), logger.Op("Check"))
	resp := dto.HealthResponse{
		Status:     "ready",
		Service:    s.deps.Service,
		Version:    s.deps.Version,
		Components: make(map[string]dto.ComponentStatus),
		Timestamp:  time.Now().UTC(),
	}

	run := func(checks map[string]Check, critical bool) {
		names := make([]string, 0, len(checks))
		for n := range checks {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, name := range names {
			cctx, cancel := context.WithTimeout(ctx, s.deps.Timeout)
			err := checks[name](cctx)
			cancel()
			if err == nil {
				resp.Components[name] = dto.ComponentStatus{Status: "ok"}
				continue
			}
			resp.Components[name] = dto.ComponentStatus{Status: "error", Message: err.Error()}
			if critical {
				resp.Status = "unavailable"
				log.Error("critical dependency unhealthy", logger.String("component", name), logger.Err(err))
			} else {
				log.Warn("dependency unhealthy", logger.String("component", name), logger.Err(err))
			}
		}
	}
	run(s.deps.Critical, true)
	run(s.deps.Optional, false)
	return resp
}
