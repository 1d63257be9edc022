package memfabric

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/postmesh/internal/fabric"
)

const exchange = "postmesh_events.test"

func msg(key, body string) fabric.Message {
	return fabric.Message{RoutingKey: key, Body: []byte(body)}
}

func binding(name string, patterns ...string) fabric.Binding {
	return fabric.Binding{
		Queue:       fabric.QueueSpec{Name: name, Durable: true},
		Patterns:    patterns,
		MaxAttempts: 3,
		OnFailure:   fabric.DeadLetter,
	}
}

// collector records deliveries and exposes them to the test goroutine.
type collector struct {
	mu sync.Mutex
	ds []fabric.Delivery
	ch chan fabric.Delivery
}

func newCollector() *collector { return &collector{ch: make(chan fabric.Delivery, 64)} }

func (c *collector) handle(_ context.Context, d fabric.Delivery) error {
	c.mu.Lock()
	c.ds = append(c.ds, d)
	c.mu.Unlock()
	c.ch <- d
	return nil
}

func (c *collector) wait(t *testing.T) fabric.Delivery {
	t.Helper()
	select {
	case d := <-c.ch:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return fabric.Delivery{}
	}
}

func (c *collector) none(t *testing.T) {
	t.Helper()
	select {
	case d := <-c.ch:
		t.Fatalf("unexpected delivery %s", d.RoutingKey)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublish_RoutesByPattern(t *testing.T) {
	b := NewBroker()
	c := Dial(b, exchange)
	defer c.Close()
	ctx := context.Background()

	created := newCollector()
	all := newCollector()
	require.NoError(t, c.Bind(ctx, binding("search", "post.created"), created.handle))
	require.NoError(t, c.Bind(ctx, binding("audit", "post.*"), all.handle))

	require.NoError(t, c.Publish(ctx, msg("post.created", `{"postId":"1"}`)))
	require.NoError(t, c.Publish(ctx, msg("post.deleted", `{"postId":"1"}`)))

	d := created.wait(t)
	require.Equal(t, "post.created", d.RoutingKey)
	require.Equal(t, 1, d.Attempt)
	require.False(t, d.Redelivered)
	created.none(t)

	got := map[string]bool{all.wait(t).RoutingKey: true, all.wait(t).RoutingKey: true}
	require.True(t, got["post.created"] && got["post.deleted"])
}

func TestScopesDoNotCrossDeliver(t *testing.T) {
	b := NewBroker()
	staging := Dial(b, fabric.ExchangeName("postmesh_events", "staging"))
	prod := Dial(b, fabric.ExchangeName("postmesh_events", "prod"))
	defer staging.Close()
	defer prod.Close()
	ctx := context.Background()

	col := newCollector()
	require.NoError(t, prod.Bind(ctx, binding("search", "post.*"), col.handle))
	require.NoError(t, staging.Publish(ctx, msg("post.created", `{}`)))
	col.none(t)
}

func TestHandlerError_RetriedThenDeadLettered(t *testing.T) {
	b := NewBroker()
	c := Dial(b, exchange)
	defer c.Close()
	ctx := context.Background()

	var calls atomic.Int32
	done := make(chan struct{}, 8)
	require.NoError(t, c.Bind(ctx, binding("media", "post.deleted"), func(context.Context, fabric.Delivery) error {
		calls.Add(1)
		done <- struct{}{}
		return errors.New("store unavailable")
	}))
	require.NoError(t, c.Publish(ctx, msg("post.deleted", `{"postId":"1"}`)))

	for i := 0; i < 3; i++ {
		<-done
	}
	require.Eventually(t, func() bool {
		return len(b.Messages("media.dead")) == 1
	}, time.Second, 5*time.Millisecond)
	require.EqualValues(t, 3, calls.Load())
	require.Zero(t, b.Depth("media"))
}

func TestHandlerError_RecoversWithinAttempts(t *testing.T) {
	b := NewBroker()
	c := Dial(b, exchange)
	defer c.Close()
	ctx := context.Background()

	attempts := make(chan fabric.Delivery, 8)
	require.NoError(t, c.Bind(ctx, binding("search", "post.created"), func(_ context.Context, d fabric.Delivery) error {
		attempts <- d
		if d.Attempt < 2 {
			return errors.New("transient")
		}
		return nil
	}))
	require.NoError(t, c.Publish(ctx, msg("post.created", `{}`)))

	first, second := <-attempts, <-attempts
	require.Equal(t, 1, first.Attempt)
	require.Equal(t, 2, second.Attempt)
	require.True(t, second.Redelivered)
	require.Never(t, func() bool { return len(attempts) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	require.Empty(t, b.Messages("search.dead"))
}

func TestPoison_NeverRetried(t *testing.T) {
	b := NewBroker()
	c := Dial(b, exchange)
	defer c.Close()
	ctx := context.Background()

	var calls atomic.Int32
	bd := binding("search", "post.created")
	bd.OnFailure = fabric.Requeue
	require.NoError(t, c.Bind(ctx, bd, func(context.Context, fabric.Delivery) error {
		calls.Add(1)
		return fabric.Poison(errors.New("bad json"))
	}))
	require.NoError(t, c.Publish(ctx, msg("post.created", `{not json`)))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return calls.Load() > 1 }, 50*time.Millisecond, 5*time.Millisecond)
	require.Empty(t, b.Messages("search.dead"))
	require.Zero(t, b.Depth("search"))
}

func TestCrashBeforeAck_RedeliveredToFreshConsumer(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	first := Dial(b, exchange)
	received := make(chan struct{})
	block := make(chan struct{})
	require.NoError(t, first.Bind(ctx, binding("media", "post.deleted"), func(context.Context, fabric.Delivery) error {
		close(received)
		<-block
		return nil
	}))
	require.NoError(t, first.Publish(ctx, msg("post.deleted", `{"postId":"post-1"}`)))
	<-received

	// The consumer dies while holding the message.
	require.NoError(t, first.Close())

	second := Dial(b, exchange)
	defer second.Close()
	col := newCollector()
	require.NoError(t, second.Bind(ctx, binding("media", "post.deleted"), col.handle))

	d := col.wait(t)
	require.Equal(t, `{"postId":"post-1"}`, string(d.Body))
	require.True(t, d.Redelivered)

	// The late ack of the dead consumer must not remove anything.
	close(block)
	first.Wait()
	col.none(t)
}

func TestPrivateQueues_AreExclusiveAndDeletedOnClose(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	spec, err := fabric.QueueSpec{Private: true}.Resolve("search")
	require.NoError(t, err)
	bd := binding("", "post.*")
	bd.Queue = spec

	a := Dial(b, exchange)
	require.NoError(t, a.Bind(ctx, bd, newCollector().handle))

	other := Dial(b, exchange)
	defer other.Close()
	require.Error(t, other.Bind(ctx, bd, newCollector().handle))

	require.True(t, b.HasQueue(spec.Name))
	require.NoError(t, a.Close())
	require.False(t, b.HasQueue(spec.Name))
}

func TestBrokerDown_PublishFailsFast(t *testing.T) {
	b := NewBroker()
	c := Dial(b, exchange)
	defer c.Close()
	ctx := context.Background()

	col := newCollector()
	require.NoError(t, c.Bind(ctx, binding("search", "post.*"), col.handle))

	b.SetDown(true)
	err := c.Publish(ctx, msg("post.created", `{}`))
	require.ErrorIs(t, err, fabric.ErrNotConnected)
	col.none(t)

	b.SetDown(false)
	require.NoError(t, c.Publish(ctx, msg("post.created", `{}`)))
	col.wait(t)
}

func TestClosedConn(t *testing.T) {
	c := Dial(NewBroker(), exchange)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Publish(context.Background(), msg("post.created", `{}`)), fabric.ErrClosed)
	require.ErrorIs(t, c.Bind(context.Background(), binding("q", "#"), nil), fabric.ErrClosed)
}
