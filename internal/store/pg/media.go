package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/postmesh/internal/domain/repository"
)

type mediaRepo struct{ pool *pgxpool.Pool }

const mediaColumns = `id, user_id, object_key, original_name, mime_type, url, created_at`

func scanMedia(row pgx.Row) (repository.Media, error) {
	var m repository.Media
	err := row.Scan(&m.ID, &m.UserID, &m.ObjectKey, &m.OriginalName, &m.MimeType, &m.URL, &m.CreatedAt)
	return m, err
}

func (r *mediaRepo) Create(ctx context.Context, m repository.Media) error {
	const query = `
		INSERT INTO media (` + mediaColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.pool.Exec(ctx, query, m.ID, m.UserID, m.ObjectKey, m.OriginalName, m.MimeType, m.URL, m.CreatedAt)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("pg: create media: %w", err)
	}
	return nil
}

func (r *mediaRepo) Get(ctx context.Context, id string) (repository.Media, error) {
	m, err := scanMedia(r.pool.QueryRow(ctx, `SELECT `+mediaColumns+` FROM media WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.Media{}, repository.ErrNotFound
	}
	if err != nil {
		return repository.Media{}, fmt.Errorf("pg: get media: %w", err)
	}
	return m, nil
}

func (r *mediaRepo) List(ctx context.Context) ([]repository.Media, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+mediaColumns+` FROM media ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("pg: list media: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.Media, error) {
		return scanMedia(row)
	})
	if err != nil {
		return nil, fmt.Errorf("pg: scan media: %w", err)
	}
	return out, nil
}

func (r *mediaRepo) Delete(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM media WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("pg: delete media: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *mediaRepo) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }
