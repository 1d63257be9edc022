package cache

import (
	"context"
	"time"
)

// Bounded wraps every operation of a Client with a short timeout so a slow or
// unreachable cache never stalls the request path.
func Bounded(c Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return c
	}
	return &bounded{next: c, timeout: timeout}
}

type bounded struct {
	next    Client
	timeout time.Duration
}

func (b *bounded) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Get(ctx, key)
}

func (b *bounded) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Set(ctx, key, value, ttl)
}

func (b *bounded) Delete(ctx context.Context, keys ...string) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Delete(ctx, keys...)
}

// DeleteMatching gets a longer budget: a scan walks the whole keyspace.
func (b *bounded) DeleteMatching(ctx context.Context, pattern string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*b.timeout)
	defer cancel()
	return b.next.DeleteMatching(ctx, pattern)
}

func (b *bounded) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.next.Ping(ctx)
}

func (b *bounded) Close() error { return b.next.Close() }
