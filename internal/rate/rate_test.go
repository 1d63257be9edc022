package rate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

// fakeClock is a settable clock shared by limiters under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newRedis(t *testing.T) (*rdb.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

var sensitive = Tier{Name: "sensitive", Limit: 50, Window: 15 * time.Minute}

func TestRedis_51stRequestDenied(t *testing.T) {
	client, _ := newRedis(t)
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	ctl := NewController(NewMultiRedisLimiter(client, "rl:").WithClock(clock.Now), FailOpen, time.Second)
	ctx := context.Background()

	for i := 1; i <= 50; i++ {
		d := ctl.Admit(ctx, "203.0.113.7", sensitive)
		require.True(t, d.Allowed, "request %d", i)
		require.Equal(t, 50-i, d.Remaining)
	}
	d := ctl.Admit(ctx, "203.0.113.7", sensitive)
	require.False(t, d.Allowed)
	require.Equal(t, 0, d.Remaining)
	require.Equal(t, 50, d.Limit)
	require.Equal(t, 15*time.Minute, d.RetryAfter)
	require.False(t, d.Degraded)

	// Another client has its own budget.
	require.True(t, ctl.Admit(ctx, "198.51.100.1", sensitive).Allowed)
}

func TestRedis_InstancesShareCounters(t *testing.T) {
	client, mr := newRedis(t)
	other := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	defer other.Close()

	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	a := NewController(NewMultiRedisLimiter(client, "rl:").WithClock(clock.Now), FailOpen, time.Second)
	b := NewController(NewMultiRedisLimiter(other, "rl:").WithClock(clock.Now), FailOpen, time.Second)
	tier := Tier{Name: "global", Limit: 4, Window: time.Second}
	ctx := context.Background()

	require.True(t, a.Admit(ctx, "u1", tier).Allowed)
	require.True(t, b.Admit(ctx, "u1", tier).Allowed)
	require.True(t, a.Admit(ctx, "u1", tier).Allowed)
	require.True(t, b.Admit(ctx, "u1", tier).Allowed)
	require.False(t, a.Admit(ctx, "u1", tier).Allowed)
	require.False(t, b.Admit(ctx, "u1", tier).Allowed)
}

func TestRedis_WindowRolloverResetsCount(t *testing.T) {
	client, mr := newRedis(t)
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	ctl := NewController(NewMultiRedisLimiter(client, "rl:").WithClock(clock.Now), FailOpen, time.Second)
	tier := Tier{Name: "sensitive", Limit: 2, Window: 15 * time.Minute}
	ctx := context.Background()

	require.True(t, ctl.Admit(ctx, "c", tier).Allowed)
	require.True(t, ctl.Admit(ctx, "c", tier).Allowed)
	require.False(t, ctl.Admit(ctx, "c", tier).Allowed)

	// The counter of a window expires with it.
	mr.FastForward(15 * time.Minute)
	require.Empty(t, mr.Keys())

	clock.Advance(15 * time.Minute)
	d := ctl.Admit(ctx, "c", tier)
	require.True(t, d.Allowed)
	require.Equal(t, 1, d.Remaining)
}

func TestRedis_DenialsStillCount(t *testing.T) {
	client, mr := newRedis(t)
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMultiRedisLimiter(client, "rl:").WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := l.AllowWithLimits(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
	}
	keys := mr.Keys()
	require.Len(t, keys, 1)
	v, err := mr.Get(keys[0])
	require.NoError(t, err)
	require.Equal(t, "5", v)
	require.Greater(t, mr.TTL(keys[0]), time.Duration(0))
}

type failingLimiter struct{}

func (failingLimiter) AllowWithLimits(context.Context, string, int, time.Duration) (Result, error) {
	return Result{}, errors.New("connection refused")
}

func TestFailPolicy(t *testing.T) {
	ctx := context.Background()

	open := NewController(failingLimiter{}, FailOpen, 0).Admit(ctx, "c", sensitive)
	require.True(t, open.Allowed)
	require.True(t, open.Degraded)

	closed := NewController(failingLimiter{}, FailClosed, 0).Admit(ctx, "c", sensitive)
	require.False(t, closed.Allowed)
	require.True(t, closed.Degraded)
}

func TestRedisDown_FailsOpenWithinTimeout(t *testing.T) {
	client, mr := newRedis(t)
	mr.Close()
	ctl := NewController(NewMultiRedisLimiter(client, "rl:"), FailOpen, 100*time.Millisecond)

	start := time.Now()
	d := ctl.Admit(context.Background(), "c", sensitive)
	require.True(t, d.Allowed)
	require.True(t, d.Degraded)
	require.Less(t, time.Since(start), time.Second)
}

func TestMemoryLimiter(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	l := NewMemoryLimiter("")
	l.Now = clock.Now
	ctl := NewController(l, FailOpen, 0)
	tier := Tier{Name: "global", Limit: 3, Window: time.Second}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.True(t, ctl.Admit(ctx, "c", tier).Allowed)
	}
	require.False(t, ctl.Admit(ctx, "c", tier).Allowed)
	clock.Advance(time.Second)
	require.True(t, ctl.Admit(ctx, "c", tier).Allowed)
}

func TestDisabledTierAlwaysAdmits(t *testing.T) {
	ctl := NewController(failingLimiter{}, FailClosed, 0)
	require.True(t, ctl.Admit(context.Background(), "c", Tier{Name: "off"}).Allowed)
}

func TestParseFailPolicy(t *testing.T) {
	p, err := ParseFailPolicy("closed")
	require.NoError(t, err)
	require.Equal(t, FailClosed, p)
	_, err = ParseFailPolicy("sideways")
	require.Error(t, err)
}
