package repository

import (
	"context"
	"io"
	"time"
)

// Media is an uploaded object and its metadata. ObjectKey locates the binary in the
// ObjectStore.
type Media struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	ObjectKey    string    `json:"objectKey"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"createdAt"`
}

// MediaStore holds media records. It is owned by the media service.
type MediaStore interface {
	Create(ctx context.Context, m Media) error
	Get(ctx context.Context, id string) (Media, error)
	// List returns every media record, newest first.
	List(ctx context.Context) ([]Media, error)
	// Delete removes the record id and reports whether one existed.
	Delete(ctx context.Context, id string) (bool, error)
	Ping(ctx context.Context) error
}

// ObjectStore holds media binaries.
type ObjectStore interface {
	Put(ctx context.Context, key string, r io.Reader) error
	// Open returns the object key. A missing object is ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the object key. A missing object is ErrNotFound.
	Delete(ctx context.Context, key string) error
}
