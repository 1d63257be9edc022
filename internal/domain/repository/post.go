package repository

import (
	"context"
	"time"
)

// Post is the system-of-record entity owned by the post service.
type Post struct {
	ID        string
	UserID    string
	Content   string
	MediaIDs  []string
	CreatedAt time.Time
}

// PostStore is the authoritative post store.
type PostStore interface {
	// Create inserts p. A duplicate id is ErrConflict.
	Create(ctx context.Context, p Post) error
	Get(ctx context.Context, id string) (Post, error)
	// List returns one page of posts newest first and the total count.
	List(ctx context.Context, page, size int) ([]Post, int, error)
	// DeleteOwned removes the post id if userID owns it and returns what was removed.
	// A missing post and a post owned by someone else are both ErrNotFound.
	DeleteOwned(ctx context.Context, id, userID string) (Post, error)
	Ping(ctx context.Context) error
}
