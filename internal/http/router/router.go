// Package router assembles the chi router of each service.
//
// Every router shares the same outer chain: recover, request id, logging, metrics and
// the global admission tier. /healthz and the metrics endpoint skip admission and auth.
// Everything under /api requires an authenticated subject; post writes and media
// uploads also pass the sensitive admission tier.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	healthctrl "github.com/dropDatabas3/postmesh/internal/http/controllers/health"
	mediactrl "github.com/dropDatabas3/postmesh/internal/http/controllers/media"
	postctrl "github.com/dropDatabas3/postmesh/internal/http/controllers/post"
	searchctrl "github.com/dropDatabas3/postmesh/internal/http/controllers/search"
	mw "github.com/dropDatabas3/postmesh/internal/http/middlewares"
	"github.com/dropDatabas3/postmesh/internal/rate"
)

// Deps are the pieces shared by every service router.
type Deps struct {
	Health *healthctrl.HealthController

	// Metrics serves MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string

	// Admission is nil when admission control is disabled.
	Admission mw.Admitter
	Global    rate.Tier
	Sensitive rate.Tier
}

func (d Deps) base() chi.Router {
	metricsPath := d.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}

	r := chi.NewRouter()
	r.Use(
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
		mw.WithMetrics(),
		mw.WithAdmission(mw.AdmissionConfig{
			Controller: d.Admission,
			Tier:       d.Global,
			Skip:       []string{"/healthz", metricsPath},
		}),
	)
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	if d.Health != nil {
		r.Get("/healthz", d.Health.Healthz)
		r.Head("/healthz", d.Health.Healthz)
	}
	if d.Metrics != nil {
		r.Handle(metricsPath, d.Metrics)
	}
	return r
}

func (d Deps) sensitive() mw.Middleware {
	return mw.WithAdmission(mw.AdmissionConfig{Controller: d.Admission, Tier: d.Sensitive})
}

// Controllers selects the services mounted on one router. Nil controllers are skipped,
// so a single process can serve any subset of post, search and media.
type Controllers struct {
	Post   *postctrl.PostController
	Search *searchctrl.SearchController
	Media  *mediactrl.MediaController
}

// New builds the router for the given controllers.
func New(d Deps, c Controllers) http.Handler {
	r := d.base()
	if c.Post != nil {
		r.Route("/api/posts", func(r chi.Router) {
			r.Use(mw.RequireUser())
			r.Get("/", c.Post.List)
			r.Get("/{id}", c.Post.Get)
			r.With(d.sensitive()).Post("/", c.Post.Create)
			r.With(d.sensitive()).Delete("/{id}", c.Post.Delete)
		})
	}
	if c.Search != nil {
		r.Route("/api/search", func(r chi.Router) {
			r.Use(mw.RequireUser())
			r.Get("/", c.Search.Search)
		})
	}
	if c.Media != nil {
		r.Route("/api/media", func(r chi.Router) {
			r.Use(mw.RequireUser())
			r.Get("/", c.Media.List)
			r.With(d.sensitive()).Post("/", c.Media.Upload)
			r.Get("/{id}/content", c.Media.Content)
		})
	}
	return r
}
