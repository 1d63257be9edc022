// Package memory implements the repository stores in process memory. It backs the
// "memory" storage driver used for development and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/dropDatabas3/postmesh/internal/domain/repository"
)

// PostStore implements repository.PostStore.
type PostStore struct {
	mu    sync.RWMutex
	posts map[string]repository.Post
}

var _ repository.PostStore = (*PostStore)(nil)

func NewPostStore() *PostStore {
	return &PostStore{posts: make(map[string]repository.Post)}
}

func (s *PostStore) Create(_ context.Context, p repository.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[p.ID]; ok {
		return repository.ErrConflict
	}
	p.MediaIDs = append([]string(nil), p.MediaIDs...)
	s.posts[p.ID] = p
	return nil
}

func (s *PostStore) Get(_ context.Context, id string) (repository.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return repository.Post{}, repository.ErrNotFound
	}
	return p, nil
}

func (s *PostStore) List(_ context.Context, page, size int) ([]repository.Post, int, error) {
	s.mu.RLock()
	all := make([]repository.Post, 0, len(s.posts))
	for _, p := range s.posts {
		all = append(all, p)
	}
	s.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID > all[j].ID
		}
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	start := (page - 1) * size
	if start >= len(all) {
		return []repository.Post{}, len(all), nil
	}
	end := min(start+size, len(all))
	return all[start:end], len(all), nil
}

func (s *PostStore) DeleteOwned(_ context.Context, id, userID string) (repository.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[id]
	if !ok || p.UserID != userID {
		return repository.Post{}, repository.ErrNotFound
	}
	delete(s.posts, id)
	return p, nil
}

func (s *PostStore) Ping(context.Context) error { return nil }

// SearchStore implements repository.SearchStore with token-overlap scoring.
type SearchStore struct {
	mu   sync.RWMutex
	docs map[string]repository.SearchDoc
}

var _ repository.SearchStore = (*SearchStore)(nil)

func NewSearchStore() *SearchStore {
	return &SearchStore{docs: make(map[string]repository.SearchDoc)}
}

func (s *SearchStore) InsertIfAbsent(_ context.Context, d repository.SearchDoc) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[d.PostID]; ok {
		return false, nil
	}
	s.docs[d.PostID] = d
	return true, nil
}

func (s *SearchStore) DeleteByPost(_ context.Context, postID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[postID]; !ok {
		return false, nil
	}
	delete(s.docs, postID)
	return true, nil
}

// Search scores each document by the number of distinct query terms it contains.
// Documents without any term are not returned; ties go to the newest document.
func (s *SearchStore) Search(_ context.Context, query string, limit int) ([]repository.SearchDoc, error) {
	terms := tokenize(query)
	if len(terms) == 0 || limit <= 0 {
		return []repository.SearchDoc{}, nil
	}

	type scored struct {
		doc   repository.SearchDoc
		score int
	}
	var hits []scored
	s.mu.RLock()
	for _, d := range s.docs {
		words := tokenize(d.Content)
		score := 0
		for t := range terms {
			if _, ok := words[t]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, scored{doc: d, score: score})
		}
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].doc.CreatedAt.After(hits[j].doc.CreatedAt)
	})
	out := make([]repository.SearchDoc, 0, min(limit, len(hits)))
	for i := 0; i < len(hits) && i < limit; i++ {
		out = append(out, hits[i].doc)
	}
	return out, nil
}

func (s *SearchStore) Ping(context.Context) error { return nil }

func tokenize(text string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// MediaStore implements repository.MediaStore.
type MediaStore struct {
	mu    sync.RWMutex
	media map[string]repository.Media
}

var _ repository.MediaStore = (*MediaStore)(nil)

func NewMediaStore() *MediaStore {
	return &MediaStore{media: make(map[string]repository.Media)}
}

func (s *MediaStore) Create(_ context.Context, m repository.Media) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[m.ID]; ok {
		return repository.ErrConflict
	}
	s.media[m.ID] = m
	return nil
}

func (s *MediaStore) Get(_ context.Context, id string) (repository.Media, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.media[id]
	if !ok {
		return repository.Media{}, repository.ErrNotFound
	}
	return m, nil
}

func (s *MediaStore) List(context.Context) ([]repository.Media, error) {
	s.mu.RLock()
	out := make([]repository.Media, 0, len(s.media))
	for _, m := range s.media {
		out = append(out, m)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MediaStore) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.media[id]; !ok {
		return false, nil
	}
	delete(s.media, id)
	return true, nil
}

func (s *MediaStore) Ping(context.Context) error { return nil }
