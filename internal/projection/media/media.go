// Package media maintains media records: when a post is deleted its media objects and
// records are removed.
package media

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/dropDatabas3/postmesh/internal/dispatch"
	"github.com/dropDatabas3/postmesh/internal/domain/repository"
	"github.com/dropDatabas3/postmesh/internal/event"
	"github.com/dropDatabas3/postmesh/internal/metrics"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

const projectionName = "media"

// Projection applies post.deleted to the media store and the object store.
type Projection struct {
	media   repository.MediaStore
	objects repository.ObjectStore
	log     *zap.Logger
}

func New(media repository.MediaStore, objects repository.ObjectStore) *Projection {
	return &Projection{media: media, objects: objects, log: logger.Named("projection.media")}
}

func (p *Projection) Register(d *dispatch.Dispatcher) {
	d.Handle(event.PostDeleted, p.OnPostDeleted)
}

// OnPostDeleted deletes every media of the post: binary first, then the record. The
// record is the marker of remaining work, so a failure between the two steps leaves it
// in place for the retry, and a redelivery after success finds nothing to do.
func (p *Projection) OnPostDeleted(ctx context.Context, ev event.Event) error {
	var pl event.PostDeletedPayload
	if err := event.Bind(ev, &pl); err != nil {
		return err
	}
	log := logger.From(ctx).With(logger.PostID(pl.PostID))

	removed := 0
	for _, id := range pl.MediaIDs {
		ok, err := p.deleteOne(ctx, id)
		if err != nil {
			metrics.ProjectionApplied.WithLabelValues(projectionName, ev.RoutingKey, "error").Inc()
			return fmt.Errorf("media %s: %w", id, err)
		}
		if ok {
			removed++
			log.Info("media deleted", logger.MediaID(id))
		}
	}

	result := "noop"
	if removed > 0 {
		result = "applied"
	}
	metrics.ProjectionApplied.WithLabelValues(projectionName, ev.RoutingKey, result).Inc()
	log.Info("processed media of deleted post", logger.Count(removed))
	return nil
}

func (p *Projection) deleteOne(ctx context.Context, id string) (bool, error) {
	m, err := p.media.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := p.objects.Delete(ctx, m.ObjectKey); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return false, err
	}
	return p.media.Delete(ctx, id)
}
