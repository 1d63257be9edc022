// Package post is the system of record for posts. Every mutation runs in the same order:
// persist, invalidate the cache, publish the event.
package post

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/postmesh/internal/cache"
	"github.com/dropDatabas3/postmesh/internal/domain/repository"
	"github.com/dropDatabas3/postmesh/internal/event"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
	"github.com/dropDatabas3/postmesh/internal/validation"
)

const (
	DefaultPage = 1
	DefaultSize = 10
	MaxSize     = 100
)

// ErrNotFound is returned for a missing post and for a post the caller does not own.
var ErrNotFound = errors.New("post not found")

// Page is one page of posts, newest first.
type Page struct {
	Posts      []repository.Post `json:"posts"`
	Page       int               `json:"page"`
	Size       int               `json:"size"`
	Total      int               `json:"total"`
	TotalPages int               `json:"totalPages"`
}

// EventPublisher is the part of publisher.Publisher the service needs.
type EventPublisher interface {
	PublishEntityEvent(ctx context.Context, kind event.Kind, e event.Entity)
}

// PostService defines the post operations.
type PostService interface {
	Create(ctx context.Context, userID, content string, mediaIDs []string) (repository.Post, error)
	Get(ctx context.Context, id string) (repository.Post, error)
	List(ctx context.Context, page, size int) (Page, error)
	Delete(ctx context.Context, userID, id string) error
}

// Deps are the collaborators of the post service. Cache may be nil to disable caching.
type Deps struct {
	Store         repository.PostStore
	Cache         cache.Client
	Invalidation  cache.InvalidationMode
	EntityTTL     time.Duration
	CollectionTTL time.Duration
	Publisher     EventPublisher
	Now           func() time.Time
	NewID         func() string
}

type postService struct {
	store       repository.PostStore
	entities    *cache.ReadThrough[repository.Post]
	collections *cache.ReadThrough[Page]
	invalidator *cache.Invalidator
	publisher   EventPublisher
	now         func() time.Time
	newID       func() string
}

// NewPostService wires the service.
func NewPostService(d Deps) PostService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	s := &postService{
		store:     d.Store,
		publisher: d.Publisher,
		now:       d.Now,
		newID:     d.NewID,
	}
	s.entities = cache.NewReadThrough[repository.Post](d.Cache, d.EntityTTL)
	s.collections = cache.NewReadThrough[Page](d.Cache, d.CollectionTTL)
	if d.Cache != nil {
		s.invalidator = cache.NewInvalidator(d.Cache, d.Invalidation, s.entities, s.collections)
	}
	return s
}

func (s *postService) Create(ctx context.Context, userID, content string, mediaIDs []string) (repository.Post, error) {
	if err := validation.ValidatePost(content, mediaIDs); err != nil {
		return repository.Post{}, err
	}
	p := repository.Post{
		ID:        s.newID(),
		UserID:    userID,
		Content:   strings.TrimSpace(content),
		MediaIDs:  mediaIDs,
		CreatedAt: s.now().UTC(),
	}
	if p.MediaIDs == nil {
		p.MediaIDs = []string{}
	}
	if err := s.store.Create(ctx, p); err != nil {
		return repository.Post{}, fmt.Errorf("create post: %w", err)
	}
	logger.From(ctx).Info("post created", logger.PostID(p.ID), logger.UserID(userID))

	s.invalidator.OnWrite(ctx, p.ID)
	s.publish(ctx, event.Created, p)
	return p, nil
}

func (s *postService) Get(ctx context.Context, id string) (repository.Post, error) {
	p, err := s.entities.Get(ctx, cache.EntityKey(id), func(ctx context.Context) (repository.Post, error) {
		return s.store.Get(ctx, id)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Post{}, ErrNotFound
	}
	if err != nil {
		return repository.Post{}, fmt.Errorf("get post: %w", err)
	}
	return p, nil
}

// List clamps nothing: out-of-range page or size is a validation error.
func (s *postService) List(ctx context.Context, page, size int) (Page, error) {
	var verrs validation.Errors
	if page < 1 {
		verrs = append(verrs, validation.FieldError{Field: "page", Message: "must be at least 1"})
	}
	if size < 1 || size > MaxSize {
		verrs = append(verrs, validation.FieldError{Field: "size", Message: fmt.Sprintf("must be between 1 and %d", MaxSize)})
	}
	if err := verrs.Err(); err != nil {
		return Page{}, err
	}

	return s.collections.Get(ctx, cache.CollectionKey(page, size), func(ctx context.Context) (Page, error) {
		posts, total, err := s.store.List(ctx, page, size)
		if err != nil {
			return Page{}, fmt.Errorf("list posts: %w", err)
		}
		return Page{
			Posts:      posts,
			Page:       page,
			Size:       size,
			Total:      total,
			TotalPages: (total + size - 1) / size,
		}, nil
	})
}

func (s *postService) Delete(ctx context.Context, userID, id string) error {
	p, err := s.store.DeleteOwned(ctx, id, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete post: %w", err)
	}
	logger.From(ctx).Info("post deleted", logger.PostID(id), logger.UserID(userID))

	s.invalidator.OnWrite(ctx, id)
	s.publish(ctx, event.Deleted, p)
	return nil
}

func (s *postService) publish(ctx context.Context, kind event.Kind, p repository.Post) {
	if s.publisher == nil {
		return
	}
	s.publisher.PublishEntityEvent(ctx, kind, postEntity(p))
}
