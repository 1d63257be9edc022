package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/postmesh/internal/domain/repository"
)

type searchRepo struct{ pool *pgxpool.Pool }

func (r *searchRepo) InsertIfAbsent(ctx context.Context, d repository.SearchDoc) (bool, error) {
	const query = `
		INSERT INTO search_docs (post_id, user_id, content, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (post_id) DO NOTHING
	`
	tag, err := r.pool.Exec(ctx, query, d.PostID, d.UserID, d.Content, d.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("pg: insert search doc: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *searchRepo) DeleteByPost(ctx context.Context, postID string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM search_docs WHERE post_id = $1`, postID)
	if err != nil {
		return false, fmt.Errorf("pg: delete search doc: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Search ranks with ts_rank over the generated tsvector column; OR semantics so any
// matching term is a hit.
func (r *searchRepo) Search(ctx context.Context, query string, limit int) ([]repository.SearchDoc, error) {
	const q = `
		WITH terms AS (
			SELECT to_tsquery('simple', string_agg(quote_literal(t), ' | ')) AS tq
			FROM unnest(tsvector_to_array(to_tsvector('simple', $1))) AS t
		)
		SELECT d.post_id, d.user_id, d.content, d.created_at
		FROM search_docs d, terms
		WHERE terms.tq IS NOT NULL AND d.tsv @@ terms.tq
		ORDER BY ts_rank(d.tsv, terms.tq) DESC, d.created_at DESC
		LIMIT $2
	`
	rows, err := r.pool.Query(ctx, q, query, limit)
	if err != nil {
		return nil, fmt.Errorf("pg: search: %w", err)
	}
	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (repository.SearchDoc, error) {
		var d repository.SearchDoc
		err := row.Scan(&d.PostID, &d.UserID, &d.Content, &d.CreatedAt)
		return d, err
	})
	if err != nil {
		return nil, fmt.Errorf("pg: scan search docs: %w", err)
	}
	return docs, nil
}

func (r *searchRepo) Ping(ctx context.Context) error { return r.pool.Ping(ctx) }
