// Package media stores uploaded media objects and their records.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/postmesh/internal/domain/repository"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

// ErrNotFound is returned for an unknown media id.
var ErrNotFound = errors.New("media not found")

// Upload is one incoming file.
type Upload struct {
	UserID       string
	OriginalName string
	MimeType     string
	Body         io.Reader
}

type MediaService interface {
	Upload(ctx context.Context, u Upload) (repository.Media, error)
	List(ctx context.Context) ([]repository.Media, error)
	// Open returns the record and the binary of id. The caller closes the reader.
	Open(ctx context.Context, id string) (repository.Media, io.ReadCloser, error)
}

type Deps struct {
	Media   repository.MediaStore
	Objects repository.ObjectStore
	// BaseURL prefixes the public URL of each object, e.g. "/api/media".
	BaseURL string
	Now     func() time.Time
	NewID   func() string
}

type mediaService struct {
	deps Deps
}

func NewMediaService(d Deps) MediaService {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = uuid.NewString
	}
	if d.BaseURL == "" {
		d.BaseURL = "/api/media"
	}
	return &mediaService{deps: d}
}

// Upload writes the object first and the record second. A failed record insert removes
// the object again so no binary is left without a record.
func (s *mediaService) Upload(ctx context.Context, u Upload) (repository.Media, error) {
	id := s.deps.NewID()
	key := id + strings.ToLower(path.Ext(u.OriginalName))
	if err := s.deps.Objects.Put(ctx, key, u.Body); err != nil {
		return repository.Media{}, fmt.Errorf("store object: %w", err)
	}

	m := repository.Media{
		ID:           id,
		UserID:       u.UserID,
		ObjectKey:    key,
		OriginalName: u.OriginalName,
		MimeType:     u.MimeType,
		URL:          strings.TrimSuffix(s.deps.BaseURL, "/") + "/" + id + "/content",
		CreatedAt:    s.deps.Now().UTC(),
	}
	if err := s.deps.Media.Create(ctx, m); err != nil {
		if derr := s.deps.Objects.Delete(ctx, key); derr != nil {
			logger.From(ctx).Warn("orphan object left after failed insert", logger.Key(key), logger.Err(derr))
		}
		return repository.Media{}, fmt.Errorf("create media record: %w", err)
	}
	logger.From(ctx).Info("media uploaded", logger.MediaID(id), logger.UserID(u.UserID))
	return m, nil
}

func (s *mediaService) List(ctx context.Context) ([]repository.Media, error) {
	return s.deps.Media.List(ctx)
}

func (s *mediaService) Open(ctx context.Context, id string) (repository.Media, io.ReadCloser, error) {
	m, err := s.deps.Media.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Media{}, nil, ErrNotFound
	}
	if err != nil {
		return repository.Media{}, nil, err
	}
	rc, err := s.deps.Objects.Open(ctx, m.ObjectKey)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.Media{}, nil, ErrNotFound
	}
	if err != nil {
		return repository.Media{}, nil, err
	}
	return m, rc, nil
}
