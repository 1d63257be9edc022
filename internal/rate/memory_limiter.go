package rate

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryLimiter implementa MultiLimiter en memoria con go-cache. Los contadores no se
// comparten entre procesos: solo para desarrollo o una única réplica.
type MemoryLimiter struct {
	c      *gocache.Cache
	prefix string
	Now    func() time.Time
}

func NewMemoryLimiter(prefix string) *MemoryLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &MemoryLimiter{
		c:      gocache.New(time.Minute, time.Minute),
		prefix: prefix,
		Now:    time.Now,
	}
}

func (m *MemoryLimiter) AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := m.Now().UTC()
	winStart, left := windowBounds(now, window)
	k := counterKey(m.prefix, key, winStart)

	// Add no hace nada si el contador de la ventana ya existe; el incremento es atómico.
	_ = m.c.Add(k, int64(0), left)
	hits, err := m.c.IncrementInt64(k, 1)
	if err != nil {
		// Expiró entre Add e Increment: reiniciamos el contador
		m.c.Set(k, int64(1), left)
		hits = 1
	}
	return result(hits, int64(limit), winStart.Add(window), left), nil
}
