package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/postmesh/internal/domain/repository"
)

type postRepo struct{ pool *pgxpool.Pool }

func (r *postRepo) Create(ctx context.Context, p repository.Post) error {
	const query = `
		INSERT INTO posts (id, user_id, content, media_ids, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	mediaIDs := p.MediaIDs
	if mediaIDs == nil {
		mediaIDs = []string{}
	}
	_, err := r.pool.Exec(ctx, query, p.ID, p.UserID, p.Content, mediaIDs, p.CreatedAt)
	if isUniqueViolation(err) {
		return repository.ErrConflict
	}
	if err != nil {
		return fmt.Errorf("pg: create post: %w", err)
	}
	return nil
}

func (r *postRepo) Get(ctx context.Context, id string) (repository.Post, error) {
	const query = `SELECT id, user_id, content, media_ids, created_at FROM posts WHERE id = $1`
	var p repository.Post
	err := r.pool.QueryRow(ctx, query, id).Scan(&p.ID, &p.UserID, &p.Content, &p.MediaIDs, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.Post{}, repository.ErrNotFound
	}
	if err != nil {
		return repository.Post{}, fmt.Errorf("pg: get post: %w", err)
	}
	return p, nil
}

func (r *postRepo) List(ctx context.Context, page, size int) ([]repository.Post, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pg: count posts: %w", err)
	}

	const query = `
		SELECT id, user_id, content, media_ids, created_at
		FROM posts
		ORDER BY created_at DESC, id DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.pool.Query(ctx, query, size, (page-1)*size)
	if err != nil {
		return nil, 0, fmt.Errorf("pg: list posts: %w", err)
	}
	posts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.Post, error) {
		var p repository.Post
		err := row.Scan(&p.ID, &p.UserID, &p.Content, &p.MediaIDs, &p.CreatedAt)
		return p, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("pg: scan posts: %w", err)
	}
	return posts, total, nil
}

func (r *postRepo) DeleteOwned(ctx context.Context, id, userID string) (repository.Post, error) {
	const query = `
		DELETE FROM posts WHERE id = $1 AND user_id = $2
		RETURNING id, user_id, content, media_ids, created_at
	`
	var p repository.Post
	err := r.pool.QueryRow(ctx, query, id, userID).Scan(&p.ID, &p.UserID, &p.Content, &p.MediaIDs, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return repository.Post{}, repository.ErrNotFound
	}
	if err != nil {
		return repository.Post{}, fmt.Errorf("pg: delete post: %w", err)
	}
	return p, nil
}

func (r *postRepo) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }
