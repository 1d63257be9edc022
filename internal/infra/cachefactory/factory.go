// Package cachefactory opens the cache backend selected by configuration.
package cachefactory

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/postmesh/internal/cache"
	"github.com/dropDatabas3/postmesh/internal/config"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

// Handle is an open cache. Redis is the underlying connection when the kind is redis,
// so the admission counters can share its pool; nil otherwise.
type Handle struct {
	Client cache.Client
	Redis  redis.UniversalClient
}

// Open builds the cache client. A redis that does not answer the startup ping is
// logged and kept: the cache is advisory and the client reconnects on its own.
func Open(ctx context.Context, cfg *config.Config) (*Handle, error) {
	switch strings.ToLower(cfg.Cache.Kind) {
	case "redis":
		c := cache.NewRedis(cache.Config{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Prefix,
		})
		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := c.Ping(pctx); err != nil {
			logger.Named("cache").Warn("redis not reachable at startup, serving without cache until it is",
				logger.String("addr", cfg.Cache.Redis.Addr), logger.Err(err))
		}
		return &Handle{Client: cache.Bounded(c, config.Dur(cfg.Cache.OpTimeout)), Redis: c.Conn()}, nil
	default:
		c, err := cache.New(cache.Config{Driver: "memory", Prefix: cfg.Cache.Prefix})
		if err != nil {
			return nil, err
		}
		return &Handle{Client: c}, nil
	}
}

// Close releases the connection. The redis pool is owned by Client.
func (h *Handle) Close() error {
	if h == nil || h.Client == nil {
		return nil
	}
	return h.Client.Close()
}
