package rate

import (
	"context"
	"fmt"
	"sync"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// MultiLimiter aplica un límite elegido en cada llamada.
type MultiLimiter interface {
	AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// MultiRedisLimiter permite usar diferentes límites dinámicamente
// manteniendo el algoritmo fixed-window del RedisLimiter
type MultiRedisLimiter struct {
	client rdb.UniversalClient
	prefix string
	now    func() time.Time
	mu     sync.RWMutex
	// Cache de limiters por configuración limit+window
	limiters map[string]*RedisLimiter
}

func NewMultiRedisLimiter(client rdb.UniversalClient, prefix string) *MultiRedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &MultiRedisLimiter{
		client:   client,
		prefix:   prefix,
		now:      time.Now,
		limiters: make(map[string]*RedisLimiter),
	}
}

// WithClock reemplaza el reloj de los limiters existentes y de los que se creen después.
func (m *MultiRedisLimiter) WithClock(now func() time.Time) *MultiRedisLimiter {
	m.mu.Lock()
	m.now = now
	for _, l := range m.limiters {
		l.Now = now
	}
	m.mu.Unlock()
	return m
}

func (m *MultiRedisLimiter) AllowWithLimits(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	configKey := fmt.Sprintf("%d:%s", limit, window.String())

	m.mu.RLock()
	limiter, exists := m.limiters[configKey]
	m.mu.RUnlock()

	if !exists {
		m.mu.Lock()
		// Double-check: otra goroutine pudo haberlo creado mientras tanto
		if limiter, exists = m.limiters[configKey]; !exists {
			limiter = NewRedisLimiter(m.client, m.prefix, limit, window)
			limiter.Now = m.now
			m.limiters[configKey] = limiter
		}
		m.mu.Unlock()
	}

	return limiter.Allow(ctx, key)
}
