package objects

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dropDatabas3/postmesh/internal/domain/repository"
	"github.com/dropDatabas3/postmesh/internal/util/atomicwrite"
)

// FS stores each object as one file under root.
type FS struct {
	root string
}

var _ repository.ObjectStore = (*FS)(nil)

// NewFS creates root if it does not exist.
func NewFS(root string) (*FS, error) {
	if root == "" {
		root = "data/media"
	}
	info, err := os.Stat(root)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(root, 0o755); mkErr != nil {
			return nil, fmt.Errorf("objects: create root %s: %w", root, mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("objects: root %s: %w", root, err)
	case !info.IsDir():
		return nil, fmt.Errorf("objects: root is not a directory: %s", root)
	}
	return &FS{root: root}, nil
}

func (s *FS) path(key string) (string, error) {
	if err := checkKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, key), nil
}

// Put replaces the object atomically so readers never see a partial upload.
func (s *FS) Put(_ context.Context, key string, r io.Reader) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if _, err := atomicwrite.WriteFrom(p, r, 0o644); err != nil {
		return fmt.Errorf("objects: put %s: %w", key, err)
	}
	return nil
}

func (s *FS) Open(_ context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, repository.ErrNotFound
	}
	return f, err
}

func (s *FS) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return repository.ErrNotFound
	}
	return err
}
