// Package objects implements repository.ObjectStore for media binaries: in memory or
// on the local filesystem.
package objects

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"regexp"
	"sync"

	"github.com/dropDatabas3/postmesh/internal/domain/repository"
)

var validKey = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,199}$`)

func checkKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("objects: invalid key %q", key)
	}
	return nil
}

// New returns the object store for driver ("memory" or "fs").
func New(driver, root string) (repository.ObjectStore, error) {
	switch driver {
	case "", "memory":
		return NewMemory(), nil
	case "fs":
		return NewFS(root)
	}
	return nil, fmt.Errorf("objects: unknown driver %q", driver)
}

// Memory keeps objects in a map.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

var _ repository.ObjectStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, key string, r io.Reader) error {
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("objects: read %s: %w", key, err)
	}
	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Open(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, repository.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; !ok {
		return repository.ErrNotFound
	}
	delete(m.objects, key)
	return nil
}

// Len reports the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
