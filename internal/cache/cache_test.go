package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisBacked(t *testing.T) (Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisFromClient(rdb, "postmesh"), mr
}

// eachBackend runs fn against the memory and the redis client.
func eachBackend(t *testing.T, fn func(t *testing.T, c Client)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory("postmesh")) })
	t.Run("redis", func(t *testing.T) {
		c, _ := newRedisBacked(t)
		fn(t, c)
	})
}

func TestClient_GetSetDelete(t *testing.T) {
	eachBackend(t, func(t *testing.T, c Client) {
		ctx := context.Background()
		_, err := c.Get(ctx, "entity:1")
		require.True(t, IsNotFound(err))

		require.NoError(t, c.Set(ctx, "entity:1", `{"id":"1"}`, time.Minute))
		v, err := c.Get(ctx, "entity:1")
		require.NoError(t, err)
		require.Equal(t, `{"id":"1"}`, v)

		require.NoError(t, c.Delete(ctx, "entity:1", "entity:missing"))
		_, err = c.Get(ctx, "entity:1")
		require.ErrorIs(t, err, ErrNotFound)
	})
}

func TestClient_DeleteMatching(t *testing.T) {
	eachBackend(t, func(t *testing.T, c Client) {
		ctx := context.Background()
		for _, k := range []string{CollectionKey(1, 10), CollectionKey(2, 10), CollectionKey(1, 50), EntityKey("1")} {
			require.NoError(t, c.Set(ctx, k, "x", time.Minute))
		}

		n, err := c.DeleteMatching(ctx, CollectionPattern)
		require.NoError(t, err)
		require.Equal(t, 3, n)

		_, err = c.Get(ctx, CollectionKey(1, 10))
		require.True(t, IsNotFound(err))
		v, err := c.Get(ctx, EntityKey("1"))
		require.NoError(t, err)
		require.Equal(t, "x", v)
	})
}

func TestRedis_PrefixAndTTL(t *testing.T) {
	c, mr := newRedisBacked(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, CollectionKey(1, 10), "[]", 5*time.Minute))
	require.True(t, mr.Exists("postmesh:collection:1:10"))
	require.Equal(t, 5*time.Minute, mr.TTL("postmesh:collection:1:10"))

	mr.FastForward(5*time.Minute + time.Second)
	_, err := c.Get(ctx, CollectionKey(1, 10))
	require.True(t, IsNotFound(err))
}

func TestKeys(t *testing.T) {
	require.Equal(t, "entity:post-1", EntityKey("post-1"))
	require.Equal(t, "collection:2:25", CollectionKey(2, 25))
	require.Equal(t, "collection:*", CollectionPattern)
}

// slowClient blocks every call until ctx is done.
type slowClient struct{ Client }

func (slowClient) Get(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (slowClient) Set(ctx context.Context, _, _ string, _ time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

func (slowClient) Delete(ctx context.Context, _ ...string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (slowClient) DeleteMatching(ctx context.Context, _ string) (int, error) {
	<-ctx.Done()
	return 0, ctx.Err()
}

type item struct {
	ID      string `json:"id"`
	Version int    `json:"version"`
}

func TestReadThrough_MissLoadsAndStores(t *testing.T) {
	c, mr := newRedisBacked(t)
	rt := NewReadThrough[item](c, time.Hour)
	ctx := context.Background()

	loads := 0
	load := func(context.Context) (item, error) {
		loads++
		return item{ID: "1", Version: loads}, nil
	}

	v, err := rt.Get(ctx, EntityKey("1"), load)
	require.NoError(t, err)
	require.Equal(t, 1, v.Version)
	require.Equal(t, time.Hour, mr.TTL("postmesh:entity:1"))

	v, err = rt.Get(ctx, EntityKey("1"), load)
	require.NoError(t, err)
	require.Equal(t, 1, v.Version, "hit returns the cached value unchanged")
	require.Equal(t, 1, loads)
}

func TestReadThrough_LoadErrorIsNotCached(t *testing.T) {
	c := NewMemory("")
	rt := NewReadThrough[item](c, time.Hour)
	boom := errors.New("not found")

	_, err := rt.Get(context.Background(), EntityKey("x"), func(context.Context) (item, error) {
		return item{}, boom
	})
	require.ErrorIs(t, err, boom)
	_, err = c.Get(context.Background(), EntityKey("x"))
	require.True(t, IsNotFound(err))
}

func TestReadThrough_CacheDownFallsBackToSource(t *testing.T) {
	c := Bounded(slowClient{}, 20*time.Millisecond)
	rt := NewReadThrough[item](c, time.Hour)

	start := time.Now()
	v, err := rt.Get(context.Background(), EntityKey("1"), func(context.Context) (item, error) {
		return item{ID: "1"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, "1", v.ID)
	require.Less(t, time.Since(start), time.Second)
}

func TestReadThrough_RedisUnreachableFallsBack(t *testing.T) {
	c, mr := newRedisBacked(t)
	mr.Close()
	rt := NewReadThrough[item](Bounded(c, 100*time.Millisecond), time.Hour)

	v, err := rt.Get(context.Background(), EntityKey("1"), func(context.Context) (item, error) {
		return item{ID: "1", Version: 7}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 7, v.Version)
}

func TestReadThrough_ConcurrentMissesCollapse(t *testing.T) {
	rt := NewReadThrough[item](NewMemory(""), time.Hour)
	var loads atomic.Int32
	release := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := rt.Get(context.Background(), EntityKey("hot"), func(context.Context) (item, error) {
				loads.Add(1)
				<-release
				return item{ID: "hot"}, nil
			})
			assert.NoError(t, err)
			assert.Equal(t, "hot", v.ID)
		}()
	}
	require.Eventually(t, func() bool { return loads.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	require.LessOrEqual(t, loads.Load(), int32(2))
}

func TestReadThrough_ReadAfterWriteSkipsLoadInFlight(t *testing.T) {
	c := NewMemory("")
	ctx := context.Background()
	rt := NewReadThrough[item](c, time.Hour)
	inv := NewInvalidator(c, Scan, rt)

	var version atomic.Int32
	version.Store(1)
	started := make(chan struct{})
	release := make(chan struct{})

	// Reader A loads version 1 and stalls before returning it.
	done := make(chan item)
	go func() {
		v, err := rt.Get(ctx, EntityKey("x"), func(context.Context) (item, error) {
			v := item{ID: "x", Version: int(version.Load())}
			close(started)
			<-release
			return v, nil
		})
		assert.NoError(t, err)
		done <- v
	}()
	<-started

	// Write: persist, then invalidate.
	version.Store(2)
	inv.OnWrite(ctx, "x")

	v, err := rt.Get(ctx, EntityKey("x"), func(context.Context) (item, error) {
		return item{ID: "x", Version: int(version.Load())}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, v.Version, "a read issued after the write must not join an older load")

	close(release)
	require.Equal(t, 1, (<-done).Version)

	// The stalled load must not overwrite the fresh entry.
	v, err = rt.Get(ctx, EntityKey("x"), func(context.Context) (item, error) {
		return item{ID: "x", Version: int(version.Load())}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 2, v.Version)
}

func TestReadThrough_CancelledLeaderDoesNotFailFollowers(t *testing.T) {
	rt := NewReadThrough[item](NewMemory(""), time.Hour)
	var loads atomic.Int32
	release := make(chan struct{})
	load := func(ctx context.Context) (item, error) {
		loads.Add(1)
		select {
		case <-release:
			return item{ID: "hot", Version: 1}, nil
		case <-ctx.Done():
			return item{}, ctx.Err()
		}
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := rt.Get(leaderCtx, EntityKey("hot"), load)
		leaderErr <- err
	}()
	require.Eventually(t, func() bool { return loads.Load() == 1 }, time.Second, time.Millisecond)

	type result struct {
		v   item
		err error
	}
	follower := make(chan result, 1)
	go func() {
		v, err := rt.Get(context.Background(), EntityKey("hot"), load)
		follower <- result{v, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-leaderErr, context.Canceled)

	close(release)
	res := <-follower
	require.NoError(t, res.err)
	require.Equal(t, "hot", res.v.ID)
	require.Equal(t, int32(1), loads.Load())
}

func TestInvalidator_EntityFreshAfterWrite(t *testing.T) {
	c, _ := newRedisBacked(t)
	ctx := context.Background()
	entities := NewReadThrough[item](c, time.Hour)
	listings := NewReadThrough[[]item](c, 5*time.Minute)
	inv := NewInvalidator(c, Scan)

	version := 1
	loadEntity := func(context.Context) (item, error) { return item{ID: "post-1", Version: version}, nil }
	loadList := func(context.Context) ([]item, error) { return []item{{ID: "post-1", Version: version}}, nil }

	_, err := entities.Get(ctx, EntityKey("post-1"), loadEntity)
	require.NoError(t, err)
	_, err = listings.Get(ctx, CollectionKey(1, 10), loadList)
	require.NoError(t, err)

	// Write: persist, then invalidate.
	version = 2
	inv.OnWrite(ctx, "post-1")

	v, err := entities.Get(ctx, EntityKey("post-1"), loadEntity)
	require.NoError(t, err)
	require.Equal(t, 2, v.Version)
	list, err := listings.Get(ctx, CollectionKey(1, 10), loadList)
	require.NoError(t, err)
	require.Equal(t, 2, list[0].Version)
}

func TestInvalidator_TTLModeBoundsCollectionStaleness(t *testing.T) {
	c, mr := newRedisBacked(t)
	ctx := context.Background()
	listings := NewReadThrough[[]item](c, 5*time.Minute)
	inv := NewInvalidator(c, TTL)

	version := 1
	loadList := func(context.Context) ([]item, error) { return []item{{ID: "p", Version: version}}, nil }
	_, err := listings.Get(ctx, CollectionKey(1, 10), loadList)
	require.NoError(t, err)

	version = 2
	inv.OnWrite(ctx, "p")

	list, err := listings.Get(ctx, CollectionKey(1, 10), loadList)
	require.NoError(t, err)
	require.Equal(t, 1, list[0].Version, "stale within the collection ttl")

	mr.FastForward(5*time.Minute + time.Second)
	list, err = listings.Get(ctx, CollectionKey(1, 10), loadList)
	require.NoError(t, err)
	require.Equal(t, 2, list[0].Version, "never older than the collection ttl")
}

func TestInvalidator_FailuresDoNotPanic(t *testing.T) {
	inv := NewInvalidator(Bounded(slowClient{}, 10*time.Millisecond), Scan)
	inv.OnWrite(context.Background(), "post-1")

	var nilInv *Invalidator
	nilInv.OnWrite(context.Background(), "post-1")
}

func TestParseInvalidationMode(t *testing.T) {
	m, err := ParseInvalidationMode("ttl")
	require.NoError(t, err)
	require.Equal(t, TTL, m)
	_, err = ParseInvalidationMode("never")
	require.Error(t, err)
}

func TestNew_UnknownDriver(t *testing.T) {
	_, err := New(Config{Driver: "memcached"})
	require.Error(t, err)
	c, err := New(Config{Driver: "memory"})
	require.NoError(t, err)
	require.NoError(t, c.Ping(context.Background()))
}

func TestNew_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(Config{Driver: "redis", Addr: mr.Addr(), Prefix: "pm"})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, EntityKey("1"), "v", time.Minute))
	require.True(t, mr.Exists("pm:entity:1"))

	rc := NewRedis(Config{Addr: mr.Addr()})
	defer rc.Close()
	require.NoError(t, rc.Conn().Ping(ctx).Err())

	addr := mr.Addr()
	mr.Close()
	_, err = New(Config{Driver: "redis", Addr: addr})
	require.Error(t, err)
}
