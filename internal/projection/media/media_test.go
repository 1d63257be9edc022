package media

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/postmesh/internal/dispatch"
	"github.com/dropDatabas3/postmesh/internal/domain/repository"
	"github.com/dropDatabas3/postmesh/internal/event"
	"github.com/dropDatabas3/postmesh/internal/fabric"
	"github.com/dropDatabas3/postmesh/internal/fabric/memfabric"
	"github.com/dropDatabas3/postmesh/internal/store/memory"
	"github.com/dropDatabas3/postmesh/internal/store/objects"
)

// countingObjects counts successful deletes and can fail the next n deletes.
type countingObjects struct {
	*objects.Memory
	deletes atomic.Int32
	failing atomic.Int32
}

func (c *countingObjects) Delete(ctx context.Context, key string) error {
	if c.failing.Load() > 0 {
		c.failing.Add(-1)
		return errors.New("object store unavailable")
	}
	if err := c.Memory.Delete(ctx, key); err != nil {
		return err
	}
	c.deletes.Add(1)
	return nil
}

func seed(t *testing.T, ids ...string) (*memory.MediaStore, *countingObjects) {
	t.Helper()
	ctx := context.Background()
	ms := memory.NewMediaStore()
	objs := &countingObjects{Memory: objects.NewMemory()}
	for _, id := range ids {
		key := id + ".png"
		require.NoError(t, objs.Put(ctx, key, strings.NewReader("bytes")))
		require.NoError(t, ms.Create(ctx, repository.Media{ID: id, UserID: "u1", ObjectKey: key, CreatedAt: time.Now()}))
	}
	return ms, objs
}

func deletedEvent(postID string, mediaIDs ...string) event.Event {
	ids := make([]any, len(mediaIDs))
	for i, id := range mediaIDs {
		ids[i] = id
	}
	return event.Event{RoutingKey: event.PostDeleted, Payload: map[string]any{"postId": postID, "userId": "u1", "mediaIds": ids}}
}

func TestOnPostDeleted_RedeliveryDeletesNothingFurther(t *testing.T) {
	ctx := context.Background()
	ms, objs := seed(t, "m1", "m2", "keep")
	p := New(ms, objs)

	ev := deletedEvent("post-1", "m1", "m2")
	for i := 0; i < 3; i++ {
		require.NoError(t, p.OnPostDeleted(ctx, ev))
	}
	require.EqualValues(t, 2, objs.deletes.Load())
	all, err := ms.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "keep", all[0].ID)
	require.Equal(t, 1, objs.Len())
}

func TestOnPostDeleted_MissingObjectStillRemovesRecord(t *testing.T) {
	ctx := context.Background()
	ms, objs := seed(t, "m1")
	require.NoError(t, objs.Memory.Delete(ctx, "m1.png"))

	require.NoError(t, New(ms, objs).OnPostDeleted(ctx, deletedEvent("post-1", "m1")))
	_, err := ms.Get(ctx, "m1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOnPostDeleted_ObjectStoreFailureKeepsRecordForRetry(t *testing.T) {
	ctx := context.Background()
	ms, objs := seed(t, "m1")
	objs.failing.Store(1)
	p := New(ms, objs)

	require.Error(t, p.OnPostDeleted(ctx, deletedEvent("post-1", "m1")))
	_, err := ms.Get(ctx, "m1")
	require.NoError(t, err)

	require.NoError(t, p.OnPostDeleted(ctx, deletedEvent("post-1", "m1")))
	_, err = ms.Get(ctx, "m1")
	require.ErrorIs(t, err, repository.ErrNotFound)
	require.EqualValues(t, 1, objs.deletes.Load())
}

func TestScenario_DuplicateDeletionEventsThroughFabric(t *testing.T) {
	ctx := context.Background()
	ms, objs := seed(t, "m1", "m2")
	p := New(ms, objs)

	broker := memfabric.NewBroker()
	conn := memfabric.Dial(broker, fabric.ExchangeName("postmesh_events", "test"))
	defer conn.Close()

	d := dispatch.New(conn, dispatch.Options{
		Service:     "media",
		Queue:       fabric.QueueSpec{Name: "media", Durable: true},
		MaxAttempts: 3,
		OnFailure:   fabric.DeadLetter,
	})
	p.Register(d)
	require.NoError(t, d.Start(ctx))

	msg, err := event.Encode(deletedEvent("post-1", "m1", "m2"), "post-1")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.Publish(ctx, msg))
	}

	require.Eventually(t, func() bool {
		return broker.Depth("media") == 0 && objs.deletes.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Never(t, func() bool { return objs.deletes.Load() > 2 }, 100*time.Millisecond, 10*time.Millisecond)
	all, err := ms.List(ctx)
	require.NoError(t, err)
	require.Empty(t, all)
	require.Empty(t, broker.Messages("media.dead"))
}
