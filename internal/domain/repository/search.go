package repository

import (
	"context"
	"time"
)

// SearchDoc is the search projection of a post.
type SearchDoc struct {
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// SearchStore is owned by the search service and written only by its dispatcher.
type SearchStore interface {
	// InsertIfAbsent stores d unless a document for d.PostID exists. It reports whether
	// it inserted.
	InsertIfAbsent(ctx context.Context, d SearchDoc) (bool, error)
	// DeleteByPost removes the document of postID and reports whether one existed.
	DeleteByPost(ctx context.Context, postID string) (bool, error)
	// Search returns at most limit documents matching query, best match first.
	Search(ctx context.Context, query string, limit int) ([]SearchDoc, error)
	Ping(ctx context.Context) error
}
