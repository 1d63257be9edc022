package cache

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/postmesh/internal/metrics"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

// InvalidationMode selects how collection keys are handled on writes.
type InvalidationMode string

const (
	// Scan deletes the entity key and every collection key on each write.
	Scan InvalidationMode = "scan"
	// TTL deletes only the entity key; collection keys expire on their own, so
	// listings may lag a write by at most the collection TTL.
	TTL InvalidationMode = "ttl"
)

// ParseInvalidationMode maps the configuration string to a mode.
func ParseInvalidationMode(s string) (InvalidationMode, error) {
	switch InvalidationMode(strings.ToLower(strings.TrimSpace(s))) {
	case Scan, "":
		return Scan, nil
	case TTL:
		return TTL, nil
	}
	return "", fmt.Errorf("cache: unknown invalidation mode %q", s)
}

// Invalidator purges the cache entries a write makes stale. It runs inside the write
// request, after persistence and before the response.
type Invalidator struct {
	client  Client
	mode    InvalidationMode
	readers []Forgetter
}

// Forgetter is implemented by ReadThrough.
type Forgetter interface {
	Forget(key string)
}

// NewInvalidator returns an invalidator for client. readers are the read-throughs
// serving the invalidated keys; their loads in flight are detached on every write.
func NewInvalidator(client Client, mode InvalidationMode, readers ...Forgetter) *Invalidator {
	if mode == "" {
		mode = Scan
	}
	return &Invalidator{client: client, mode: mode, readers: readers}
}

// OnWrite deletes entity:<id> and, in Scan mode, every collection key. Failures are
// logged and counted but never fail the write: the TTLs bound the damage.
func (i *Invalidator) OnWrite(ctx context.Context, id string) {
	if i == nil || i.client == nil {
		return
	}
	log := logger.From(ctx)

	key := EntityKey(id)
	for _, r := range i.readers {
		r.Forget(key)
	}
	if err := i.client.Delete(ctx, key); err != nil {
		metrics.CacheInvalidations.WithLabelValues("entity", "error").Inc()
		log.Error("entity invalidation failed, stale until ttl", logger.CacheKey(key), logger.Err(err))
	} else {
		metrics.CacheInvalidations.WithLabelValues("entity", "ok").Inc()
	}

	if i.mode != Scan {
		return
	}
	n, err := i.client.DeleteMatching(ctx, CollectionPattern)
	if err != nil {
		metrics.CacheInvalidations.WithLabelValues("collection", "error").Inc()
		log.Warn("collection invalidation failed, stale until ttl", logger.CacheKey(CollectionPattern), logger.Err(err))
		return
	}
	metrics.CacheInvalidations.WithLabelValues("collection", "ok").Inc()
	log.Debug("collection keys invalidated", logger.Count(n))
}
