// Package search maintains the search projection of posts: one document per live post,
// inserted on post.created and removed on post.deleted.
package search

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/dropDatabas3/postmesh/internal/dispatch"
	"github.com/dropDatabas3/postmesh/internal/domain/repository"
	"github.com/dropDatabas3/postmesh/internal/event"
	"github.com/dropDatabas3/postmesh/internal/metrics"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

const (
	projectionName = "search"

	// MaxResults caps every search response.
	MaxResults = 10
)

// Projection applies post events to a SearchStore and answers queries from it.
type Projection struct {
	store repository.SearchStore
	log   *zap.Logger
}

func New(store repository.SearchStore) *Projection {
	return &Projection{store: store, log: logger.Named("projection.search")}
}

// Register binds the projection's handlers on d.
func (p *Projection) Register(d *dispatch.Dispatcher) {
	d.Handle(event.PostCreated, p.OnPostCreated)
	d.Handle(event.PostDeleted, p.OnPostDeleted)
}

// OnPostCreated inserts the document unless it already exists, so a redelivery is a
// no-op.
func (p *Projection) OnPostCreated(ctx context.Context, ev event.Event) error {
	var pl event.PostCreatedPayload
	if err := event.Bind(ev, &pl); err != nil {
		return err
	}
	inserted, err := p.store.InsertIfAbsent(ctx, repository.SearchDoc{
		PostID:    pl.PostID,
		UserID:    pl.UserID,
		Content:   pl.Content,
		CreatedAt: pl.CreatedAt,
	})
	return p.record(ctx, ev, pl.PostID, inserted, err)
}

// OnPostDeleted removes the document if present.
func (p *Projection) OnPostDeleted(ctx context.Context, ev event.Event) error {
	var pl event.PostDeletedPayload
	if err := event.Bind(ev, &pl); err != nil {
		return err
	}
	deleted, err := p.store.DeleteByPost(ctx, pl.PostID)
	return p.record(ctx, ev, pl.PostID, deleted, err)
}

func (p *Projection) record(ctx context.Context, ev event.Event, postID string, changed bool, err error) error {
	log := logger.From(ctx).With(logger.PostID(postID))
	switch {
	case err != nil:
		metrics.ProjectionApplied.WithLabelValues(projectionName, ev.RoutingKey, "error").Inc()
		return err
	case changed:
		metrics.ProjectionApplied.WithLabelValues(projectionName, ev.RoutingKey, "applied").Inc()
		log.Info("search document updated")
	default:
		metrics.ProjectionApplied.WithLabelValues(projectionName, ev.RoutingKey, "noop").Inc()
		log.Debug("search document already in desired state")
	}
	return nil
}

// Search returns up to MaxResults documents matching query, best first.
func (p *Projection) Search(ctx context.Context, query string) ([]repository.SearchDoc, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []repository.SearchDoc{}, nil
	}
	return p.store.Search(ctx, query, MaxResults)
}
