package pg

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

const migrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

// Migrate applies the *_up.sql files of fsys in lexical order ("up") or reverts the
// most recent *_down.sql files in reverse order ("down"). Applied migrations are recorded
// in schema_migrations so "up" is idempotent. steps <= 0 means all.
func (s *Store) Migrate(ctx context.Context, fsys fs.FS, direction string, steps int) (int, error) {
	if _, err := s.pool.Exec(ctx, migrationsTable); err != nil {
		return 0, fmt.Errorf("pg: create schema_migrations: %w", err)
	}
	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return 0, err
	}

	log := logger.Named("migrate")
	switch strings.ToLower(direction) {
	case "", "up":
		files, err := listSQL(fsys, "_up.sql")
		if err != nil {
			return 0, err
		}
		n := 0
		for _, f := range files {
			name := strings.TrimSuffix(f, "_up.sql")
			if applied[name] {
				continue
			}
			if steps > 0 && n == steps {
				break
			}
			if err := s.execFile(ctx, fsys, f, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
				return n, err
			}
			log.Info("migration applied", logger.String("name", name))
			n++
		}
		return n, nil

	case "down":
		files, err := listSQL(fsys, "_down.sql")
		if err != nil {
			return 0, err
		}
		sort.Sort(sort.Reverse(sort.StringSlice(files)))
		n := 0
		for _, f := range files {
			name := strings.TrimSuffix(f, "_down.sql")
			if !applied[name] {
				continue
			}
			if steps > 0 && n == steps {
				break
			}
			if err := s.execFile(ctx, fsys, f, `DELETE FROM schema_migrations WHERE name = $1`, name); err != nil {
				return n, err
			}
			log.Info("migration reverted", logger.String("name", name))
			n++
		}
		return n, nil
	}
	return 0, fmt.Errorf("pg: unknown migration direction %q (use up or down)", direction)
}

func (s *Store) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("pg: read schema_migrations: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("pg: read schema_migrations: %w", err)
	}
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out, nil
}

// execFile runs one migration file and its bookkeeping statement in one transaction.
func (s *Store) execFile(ctx context.Context, fsys fs.FS, file, record, name string) error {
	b, err := fs.ReadFile(fsys, file)
	if err != nil {
		return fmt.Errorf("pg: read %s: %w", file, err)
	}
	start := time.Now()
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("pg: begin %s: %w", file, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(b)); err != nil {
		return fmt.Errorf("pg: exec %s: %w", file, err)
	}
	if _, err := tx.Exec(ctx, record, name); err != nil {
		return fmt.Errorf("pg: record %s: %w", file, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("pg: commit %s: %w", file, err)
	}
	logger.Named("migrate").Debug("migration file executed",
		logger.String("file", file), logger.Duration(time.Since(start)))
	return nil
}

func listSQL(fsys fs.FS, suffix string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("pg: list migrations: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), suffix) {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out, nil
}
