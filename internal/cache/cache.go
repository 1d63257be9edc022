// Package cache provee el cache key-value compartido que usan las lecturas read-through.
//
// Soporta:
//   - Memory (in-process con go-cache, para desarrollo/testing o una sola instancia)
//   - Redis (compartido por todas las instancias, para producción)
//
// El cache es consultivo: guarda resultados serializados con TTL y nada de record.
// Los callers tratan cualquier error de cache como un miss.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client define las operaciones de cache. Las keys son lógicas; cada backend
// aplica su prefijo.
type Client interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value. A ttl of 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// Delete removes keys. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error

	// DeleteMatching removes every key matching a glob pattern ("collection:*") and
	// returns how many were removed.
	DeleteMatching(ctx context.Context, pattern string) (int, error)

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close() error
}

// Config selecciona y configura un backend.
type Config struct {
	Driver   string // "memory" | "redis"
	Addr     string
	Password string
	DB       int
	Prefix   string // prefijo para todas las keys
}

// ErrNotFound is returned by Get on a miss.
var ErrNotFound = errors.New("cache: key not found")

// IsNotFound reports whether err is a miss.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// New crea un cliente según cfg.Driver. Para redis verifica la conexión.
func New(cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		c := NewRedis(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.Ping(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("cache: redis ping failed: %w", err)
		}
		return c, nil
	case "memory", "":
		return NewMemory(cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
