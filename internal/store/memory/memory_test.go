package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/postmesh/internal/domain/repository"
)

func TestPostStore(t *testing.T) {
	ctx := context.Background()
	s := NewPostStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.Create(ctx, repository.Post{
			ID: fmt.Sprintf("p%d", i), UserID: "u1", Content: "c", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.ErrorIs(t, s.Create(ctx, repository.Post{ID: "p1"}), repository.ErrConflict)

	page, total, err := s.List(ctx, 1, 2)
	require.NoError(t, err)
	require.Equal(t, 5, total)
	require.Equal(t, []string{"p5", "p4"}, []string{page[0].ID, page[1].ID})

	page, _, err = s.List(ctx, 3, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "p1", page[0].ID)

	page, _, err = s.List(ctx, 9, 2)
	require.NoError(t, err)
	require.Empty(t, page)

	_, err = s.DeleteOwned(ctx, "p1", "someone-else")
	require.ErrorIs(t, err, repository.ErrNotFound)
	p, err := s.DeleteOwned(ctx, "p1", "u1")
	require.NoError(t, err)
	require.Equal(t, "p1", p.ID)
	_, err = s.Get(ctx, "p1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestSearchStore(t *testing.T) {
	ctx := context.Background()
	s := NewSearchStore()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	inserted, err := s.InsertIfAbsent(ctx, repository.SearchDoc{PostID: "post-1", Content: "hello world", CreatedAt: base})
	require.NoError(t, err)
	require.True(t, inserted)
	inserted, err = s.InsertIfAbsent(ctx, repository.SearchDoc{PostID: "post-1", Content: "changed"})
	require.NoError(t, err)
	require.False(t, inserted)
	_, _ = s.InsertIfAbsent(ctx, repository.SearchDoc{PostID: "post-2", Content: "Hello, again!", CreatedAt: base.Add(time.Hour)})
	_, _ = s.InsertIfAbsent(ctx, repository.SearchDoc{PostID: "post-3", Content: "unrelated", CreatedAt: base})

	docs, err := s.Search(ctx, "hello world", 10)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	require.Equal(t, "post-1", docs[0].PostID)
	require.Equal(t, "hello world", docs[0].Content)

	for i := 0; i < 20; i++ {
		_, _ = s.InsertIfAbsent(ctx, repository.SearchDoc{PostID: fmt.Sprintf("bulk-%d", i), Content: "hello"})
	}
	docs, err = s.Search(ctx, "hello", 10)
	require.NoError(t, err)
	require.Len(t, docs, 10)

	deleted, err := s.DeleteByPost(ctx, "post-1")
	require.NoError(t, err)
	require.True(t, deleted)
	deleted, err = s.DeleteByPost(ctx, "post-1")
	require.NoError(t, err)
	require.False(t, deleted)

	docs, err = s.Search(ctx, "   ", 10)
	require.NoError(t, err)
	require.Empty(t, docs)
}

func TestMediaStore(t *testing.T) {
	ctx := context.Background()
	s := NewMediaStore()
	require.NoError(t, s.Create(ctx, repository.Media{ID: "m1", ObjectKey: "k1"}))
	require.ErrorIs(t, s.Create(ctx, repository.Media{ID: "m1"}), repository.ErrConflict)

	m, err := s.Get(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, "k1", m.ObjectKey)

	all, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	ok, err := s.Delete(ctx, "m1")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Delete(ctx, "m1")
	require.NoError(t, err)
	require.False(t, ok)
	_, err = s.Get(ctx, "m1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}
