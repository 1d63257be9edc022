// Package storefactory opens the stores of record and the object store.
package storefactory

import (
	"context"
	"fmt"
	"strings"

	"github.com/dropDatabas3/postmesh/internal/config"
	"github.com/dropDatabas3/postmesh/internal/domain/repository"
	"github.com/dropDatabas3/postmesh/internal/store/memory"
	"github.com/dropDatabas3/postmesh/internal/store/objects"
	"github.com/dropDatabas3/postmesh/internal/store/pg"
)

// Stores groups the repositories a process may need. Each service only uses its own.
type Stores struct {
	Posts   repository.PostStore
	Search  repository.SearchStore
	Media   repository.MediaStore
	Objects repository.ObjectStore

	// PG is set for the postgres driver.
	PG *pg.Store
}

func Open(ctx context.Context, cfg *config.Config) (*Stores, error) {
	objs, err := objects.New(cfg.Objects.Driver, cfg.Objects.Root)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(cfg.Storage.Driver) {
	case "postgres":
		lifetime := config.Dur(cfg.Storage.Postgres.ConnMaxLifetime)
		s, err := pg.New(ctx, cfg.Storage.DSN, pg.Options{
			MaxConns:        cfg.Storage.Postgres.MaxConns,
			ConnMaxLifetime: lifetime,
		})
		if err != nil {
			return nil, err
		}
		return &Stores{Posts: s.Posts(), Search: s.Search(), Media: s.Media(), Objects: objs, PG: s}, nil
	case "memory":
		return &Stores{
			Posts:   memory.NewPostStore(),
			Search:  memory.NewSearchStore(),
			Media:   memory.NewMediaStore(),
			Objects: objs,
		}, nil
	}
	return nil, fmt.Errorf("storefactory: unknown driver %q", cfg.Storage.Driver)
}

func (s *Stores) Close() {
	if s != nil && s.PG != nil {
		s.PG.Close()
	}
}
