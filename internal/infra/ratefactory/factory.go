// Package ratefactory builds the admission controller from configuration.
package ratefactory

import (
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/postmesh/internal/config"
	"github.com/dropDatabas3/postmesh/internal/rate"
)

// Open returns nil when admission control is disabled. Counters live in rdb when it is
// set, so every instance of every service shares them; otherwise they are per process.
func Open(cfg *config.Config, rdb redis.UniversalClient) (*rate.Controller, error) {
	if !cfg.Rate.Enabled {
		return nil, nil
	}
	policy, err := rate.ParseFailPolicy(cfg.Rate.FailPolicy)
	if err != nil {
		return nil, err
	}
	var limiter rate.MultiLimiter
	if rdb != nil {
		limiter = rate.NewMultiRedisLimiter(rdb, cfg.Rate.Prefix)
	} else {
		limiter = rate.NewMemoryLimiter(cfg.Rate.Prefix)
	}
	return rate.NewController(limiter, policy, config.Dur(cfg.Rate.OpTimeout)), nil
}

// Tiers returns the global and sensitive tiers.
func Tiers(cfg *config.Config) (global, sensitive rate.Tier) {
	global = rate.Tier{Name: "global", Limit: cfg.Rate.Global.Limit, Window: cfg.Rate.Global.WindowDuration()}
	sensitive = rate.Tier{Name: "sensitive", Limit: cfg.Rate.Sensitive.Limit, Window: cfg.Rate.Sensitive.WindowDuration()}
	return global, sensitive
}
