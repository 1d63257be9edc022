// Package app wires configuration, infrastructure and HTTP into a runnable process.
//
// A process serves one or more of the post, search and media services. Each service
// brings its own routes and, for search and media, its own consumption queue; they
// share one fabric connection, one cache and one admission controller.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/postmesh/internal/cache"
	"github.com/dropDatabas3/postmesh/internal/config"
	"github.com/dropDatabas3/postmesh/internal/dispatch"
	"github.com/dropDatabas3/postmesh/internal/fabric"
	"github.com/dropDatabas3/postmesh/internal/fabric/memfabric"
	healthctrl "github.com/dropDatabas3/postmesh/internal/http/controllers/health"
	mediactrl "github.com/dropDatabas3/postmesh/internal/http/controllers/media"
	postctrl "github.com/dropDatabas3/postmesh/internal/http/controllers/post"
	searchctrl "github.com/dropDatabas3/postmesh/internal/http/controllers/search"
	"github.com/dropDatabas3/postmesh/internal/http/router"
	healthsvc "github.com/dropDatabas3/postmesh/internal/http/services/health"
	mediasvc "github.com/dropDatabas3/postmesh/internal/http/services/media"
	postsvc "github.com/dropDatabas3/postmesh/internal/http/services/post"
	"github.com/dropDatabas3/postmesh/internal/infra/cachefactory"
	"github.com/dropDatabas3/postmesh/internal/infra/fabricfactory"
	"github.com/dropDatabas3/postmesh/internal/infra/ratefactory"
	"github.com/dropDatabas3/postmesh/internal/infra/storefactory"
	"github.com/dropDatabas3/postmesh/internal/metrics"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
	mediaproj "github.com/dropDatabas3/postmesh/internal/projection/media"
	searchproj "github.com/dropDatabas3/postmesh/internal/projection/search"
	"github.com/dropDatabas3/postmesh/internal/publisher"
)

// Service names one deployable service.
type Service string

const (
	Post   Service = "post"
	Search Service = "search"
	Media  Service = "media"
)

// ParseServices maps command arguments to services. No argument or "all" selects
// every service.
func ParseServices(args []string) ([]Service, error) {
	if len(args) == 0 || (len(args) == 1 && strings.EqualFold(args[0], "all")) {
		return []Service{Post, Search, Media}, nil
	}
	seen := map[Service]bool{}
	var out []Service
	for _, a := range args {
		s := Service(strings.ToLower(strings.TrimSpace(a)))
		switch s {
		case Post, Search, Media:
		default:
			return nil, fmt.Errorf("app: unknown service %q (post|search|media|all)", a)
		}
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out, nil
}

// Options are process-level collaborators that do not come from configuration.
type Options struct {
	// Broker backs the memory fabric. Processes that run several services in one
	// binary, and tests, share one; nil gives the process a private broker.
	Broker *memfabric.Broker
}

// App is a wired process.
type App struct {
	cfg      *config.Config
	services []Service
	log      *zap.Logger

	handler     http.Handler
	fab         fabric.Fabric
	pub         *publisher.Publisher
	dispatchers []*dispatch.Dispatcher
	stores      *storefactory.Stores
	cache       *cachefactory.Handle
}

// New opens every dependency the services need and builds the HTTP handler.
// Consumers are bound by Start.
func New(ctx context.Context, cfg *config.Config, services []Service, opts Options) (*App, error) {
	a := &App{
		cfg:      cfg,
		services: services,
		log:      logger.Named("app").With(logger.String("services", joinServices(services))),
	}
	if err := a.wire(ctx, opts); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire(ctx context.Context, opts Options) error {
	cfg := a.cfg
	var err error
	if a.stores, err = storefactory.Open(ctx, cfg); err != nil {
		return err
	}
	if a.cache, err = cachefactory.Open(ctx, cfg); err != nil {
		return err
	}
	admission, err := ratefactory.Open(cfg, a.cache.Redis)
	if err != nil {
		return err
	}
	if a.fab, err = fabricfactory.Open(ctx, cfg, opts.Broker); err != nil {
		return err
	}
	if strings.EqualFold(cfg.Fabric.Driver, "memory") && len(a.services) < 3 && opts.Broker == nil {
		a.log.Warn("memory fabric only reaches services running in this process")
	}

	global, sensitive := ratefactory.Tiers(cfg)
	deps := router.Deps{
		MetricsPath: cfg.Metrics.Path,
		Global:      global,
		Sensitive:   sensitive,
	}
	if admission != nil {
		deps.Admission = admission
	}
	if cfg.Metrics.Enabled {
		if err := metrics.Register(nil); err != nil {
			return fmt.Errorf("app: register metrics: %w", err)
		}
		deps.Metrics = promhttp.Handler()
	}

	critical := map[string]healthsvc.Check{}
	optional := map[string]healthsvc.Check{}
	var ctrls router.Controllers

	for _, s := range a.services {
		switch s {
		case Post:
			mode, err := publisher.ParseMode(cfg.Fabric.PublishMode)
			if err != nil {
				return err
			}
			invalidation, err := cache.ParseInvalidationMode(cfg.Cache.Invalidation)
			if err != nil {
				return err
			}
			a.pub = publisher.New(a.fab, publisher.Options{
				Mode:    mode,
				Timeout: config.Dur(cfg.Fabric.PublishTimeout),
			})
			ctrls.Post = postctrl.NewPostController(postsvc.NewPostService(postsvc.Deps{
				Store:         a.stores.Posts,
				Cache:         a.cache.Client,
				Invalidation:  invalidation,
				EntityTTL:     config.Dur(cfg.Cache.EntityTTL),
				CollectionTTL: config.Dur(cfg.Cache.CollectionTTL),
				Publisher:     a.pub,
			}))
			critical["posts"] = a.stores.Posts.Ping
			optional["cache"] = a.cache.Client.Ping

		case Search:
			proj := searchproj.New(a.stores.Search)
			d, err := a.dispatcher("search", cfg.Fabric.Queues.Search)
			if err != nil {
				return err
			}
			proj.Register(d)
			ctrls.Search = searchctrl.NewSearchController(proj)
			critical["search"] = a.stores.Search.Ping

		case Media:
			proj := mediaproj.New(a.stores.Media, a.stores.Objects)
			d, err := a.dispatcher("media", cfg.Fabric.Queues.Media)
			if err != nil {
				return err
			}
			proj.Register(d)
			ctrls.Media = mediactrl.NewMediaController(mediasvc.NewMediaService(mediasvc.Deps{
				Media:   a.stores.Media,
				Objects: a.stores.Objects,
			}))
			critical["media"] = a.stores.Media.Ping
		}
	}

	deps.Health = healthctrl.NewHealthController(healthsvc.NewHealthService(healthsvc.Deps{
		Service:  joinServices(a.services),
		Version:  cfg.App.Version,
		Critical: critical,
		Optional: optional,
	}))
	a.handler = router.New(deps, ctrls)
	return nil
}

func (a *App) dispatcher(service string, q config.Queue) (*dispatch.Dispatcher, error) {
	spec, policy, err := fabricfactory.Binding(q)
	if err != nil {
		return nil, err
	}
	d := dispatch.New(a.fab, dispatch.Options{
		Service:     service,
		Queue:       spec,
		MaxAttempts: q.MaxAttempts,
		OnFailure:   policy,
		Prefetch:    q.Prefetch,
	})
	a.dispatchers = append(a.dispatchers, d)
	return d, nil
}

// Handler is the HTTP handler of every served service.
func (a *App) Handler() http.Handler { return a.handler }

// Start binds the consumption queues.
func (a *App) Start(ctx context.Context) error {
	for _, d := range a.dispatchers {
		if err := d.Start(ctx); err != nil {
			return err
		}
		a.log.Info("consuming", logger.Queue(d.Queue()))
	}
	return nil
}

// Run starts the consumers and serves HTTP until ctx is cancelled, then shuts the
// server down gracefully.
func (a *App) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      a.handler,
		ReadTimeout:  config.Dur(a.cfg.Server.ReadTimeout),
		WriteTimeout: config.Dur(a.cfg.Server.WriteTimeout),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("app: serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), config.Dur(a.cfg.Server.ShutdownTimeout))
		defer cancel()
		a.log.Info("shutting down")
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// Close drains pending publishes and releases every connection. Consumers stop with
// the fabric; unacknowledged deliveries go back to their queues.
func (a *App) Close() error {
	if a.pub != nil {
		a.pub.Close()
	}
	var errs []error
	if a.fab != nil {
		errs = append(errs, a.fab.Close())
	}
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	a.stores.Close()
	return errors.Join(errs...)
}

func joinServices(services []Service) string {
	parts := make([]string, len(services))
	for i, s := range services {
		parts[i] = string(s)
	}
	return strings.Join(parts, ",")
}
