// Package search serves the search endpoint of the search service.
package search

import (
	"context"
	"net/http"
	"strings"

	"github.com/dropDatabas3/postmesh/internal/domain/repository"
	dto "github.com/dropDatabas3/postmesh/internal/http/dto/search"
	"github.com/dropDatabas3/postmesh/internal/http/errors"
	"github.com/dropDatabas3/postmesh/internal/http/helpers"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

// Searcher answers full-text queries. projection/search.Projection implements it.
type Searcher interface {
	Search(ctx context.Context, query string) ([]repository.SearchDoc, error)
}

type SearchController struct {
	searcher Searcher
}

func NewSearchController(s Searcher) *SearchController {
	return &SearchController{searcher: s}
}

// Search handles GET /api/search?query=.
func (c *SearchController) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("query"))
	if q == "" {
		errors.WriteError(w, errors.ErrInvalidParameter.WithDetail("query is required"))
		return
	}
	docs, err := c.searcher.Search(r.Context(), q)
	if err != nil {
		logger.From(r.Context()).Error("search failed", logger.Err(err))
		errors.WriteError(w, errors.ErrInternalServerError.WithCause(err))
		return
	}
	out := dto.SearchResponse{Query: q, Results: make([]dto.Result, 0, len(docs))}
	for _, d := range docs {
		out.Results = append(out.Results, dto.Result{PostID: d.PostID, UserID: d.UserID, Content: d.Content, CreatedAt: d.CreatedAt})
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}
