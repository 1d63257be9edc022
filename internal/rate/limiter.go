package rate

import (
	"context"
	"fmt"
	"strings"
	"time"

	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	WindowTTL   time.Duration
	ResetAt     time.Time
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// RedisLimiter: fixed window sencillo (INCR + PEXPIRE en un MULTI)
//
// La key del contador lleva el inicio de la ventana, así cada ventana nueva arranca
// en cero. Los requests rechazados también incrementan el contador.
type RedisLimiter struct {
	Client rdb.UniversalClient
	Prefix string
	Max    int64
	Window time.Duration
	// Now por default es time.Now; los tests inyectan un reloj para cruzar ventanas.
	Now func() time.Time
}

func NewRedisLimiter(client rdb.UniversalClient, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{
		Client: client,
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
		Now:    time.Now,
	}
}

// windowBounds devuelve el inicio de la ventana que contiene now y lo que le queda.
func windowBounds(now time.Time, window time.Duration) (time.Time, time.Duration) {
	start := now.Truncate(window)
	return start, start.Add(window).Sub(now)
}

func counterKey(prefix, key string, start time.Time) string {
	return fmt.Sprintf("%s%s:%d", prefix, strings.ReplaceAll(key, " ", "_"), start.Unix())
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := l.Now().UTC()
	winStart, left := windowBounds(now, l.Window)
	redisKey := counterKey(l.Prefix, key, winStart)

	// Cada hit fija el expiry al fin de la ventana: la key muere con su ventana
	// sin importar qué instancia la creó.
	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.PExpire(ctx, redisKey, left)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	return result(incr.Val(), l.Max, winStart.Add(l.Window), left), nil
}

func result(hits, max int64, resetAt time.Time, left time.Duration) Result {
	allowed := hits <= max
	remaining := max - hits
	if remaining < 0 {
		remaining = 0
	}
	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: hits,
		WindowTTL:   left,
		ResetAt:     resetAt,
	}
	if !allowed {
		// Retry after: resto de la ventana, mínimo un segundo
		res.RetryAfter = left
		if res.RetryAfter < time.Second {
			res.RetryAfter = time.Second
		}
	}
	return res
}
