package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/postmesh/internal/metrics"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

// DefaultLoadTimeout bounds a shared load. It runs detached from the caller that
// started it, so one cancelled request does not fail the others waiting on it.
const DefaultLoadTimeout = 10 * time.Second

// ReadThrough serves T values from the cache, loading and storing them on a miss.
// Concurrent misses for the same key in one process share a single load; across
// processes the last writer wins, which is harmless because loads are side-effect free.
type ReadThrough[T any] struct {
	client      Client
	ttl         time.Duration
	loadTimeout time.Duration
	group       singleflight.Group

	// epoch advances on every Forget. Loads are shared only within one epoch and a
	// load that outlives its epoch does not leave its result in the cache.
	epoch atomic.Uint64
}

// NewReadThrough returns a reader storing entries with ttl. A nil client disables
// caching: every Get goes to the loader.
func NewReadThrough[T any](client Client, ttl time.Duration) *ReadThrough[T] {
	return &ReadThrough[T]{client: client, ttl: ttl, loadTimeout: DefaultLoadTimeout}
}

// Forget detaches key from the loads in flight. Reads issued afterwards start a new
// load, and loads already running do not store what they read. Writers call it
// before deleting the cached entry. Loads of other keys in flight are detached too.
func (r *ReadThrough[T]) Forget(key string) {
	if r == nil {
		return
	}
	r.epoch.Add(1)
	r.group.Forget(key)
}

// Get returns the cached value for key, or runs load and caches its result.
// Cache failures are logged and degrade to a plain load; only load errors are returned.
func (r *ReadThrough[T]) Get(ctx context.Context, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if r.client == nil {
		return load(ctx)
	}
	log := logger.From(ctx)

	raw, err := r.client.Get(ctx, key)
	switch {
	case err == nil:
		var v T
		uerr := json.Unmarshal([]byte(raw), &v)
		if uerr == nil {
			metrics.CacheOps.WithLabelValues("hit").Inc()
			return v, nil
		}
		log.Warn("cache entry undecodable, reloading", logger.CacheKey(key), logger.Err(uerr))
	case IsNotFound(err):
		metrics.CacheOps.WithLabelValues("miss").Inc()
	default:
		metrics.CacheOps.WithLabelValues("error").Inc()
		log.Warn("cache read failed, using source", logger.CacheKey(key), logger.Err(err))
	}

	epoch := r.epoch.Load()
	ch := r.group.DoChan(strconv.FormatUint(epoch, 10)+"|"+key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.loadTimeout)
		defer cancel()
		return r.load(lctx, key, epoch, load)
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		return res.Val.(T), nil
	}
}

func (r *ReadThrough[T]) load(ctx context.Context, key string, epoch uint64, load func(context.Context) (T, error)) (T, error) {
	val, err := load(ctx)
	if err != nil {
		return val, err
	}
	if r.epoch.Load() != epoch {
		return val, nil
	}
	log := logger.From(ctx)
	b, err := json.Marshal(val)
	if err != nil {
		return val, nil
	}
	if err := r.client.Set(ctx, key, string(b), r.ttl); err != nil {
		log.Warn("cache write failed", logger.CacheKey(key), logger.Err(err))
		return val, nil
	}
	// A write may have forgotten the key while Set was in flight.
	if r.epoch.Load() != epoch {
		if err := r.client.Delete(ctx, key); err != nil {
			log.Warn("stale cache entry not removed, stale until ttl", logger.CacheKey(key), logger.Err(err))
		}
	}
	return val, nil
}
