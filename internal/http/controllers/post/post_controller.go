// Package post serves the post endpoints.
package post

import (
	stderrors "errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/postmesh/internal/domain/repository"
	dto "github.com/dropDatabas3/postmesh/internal/http/dto/post"
	"github.com/dropDatabas3/postmesh/internal/http/errors"
	"github.com/dropDatabas3/postmesh/internal/http/helpers"
	mw "github.com/dropDatabas3/postmesh/internal/http/middlewares"
	svc "github.com/dropDatabas3/postmesh/internal/http/services/post"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
	"github.com/dropDatabas3/postmesh/internal/validation"
)

// PostController handles /api/posts.
type PostController struct {
	service svc.PostService
}

func NewPostController(service svc.PostService) *PostController {
	return &PostController{service: service}
}

// Create handles POST /api/posts.
func (c *PostController) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreatePostRequest
	if !helpers.ReadJSON(w, r, &req) {
		return
	}
	p, err := c.service.Create(r.Context(), mw.GetUserID(r.Context()), req.Content, req.MediaIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, toResponse(p))
}

// Get handles GET /api/posts/{id}.
func (c *PostController) Get(w http.ResponseWriter, r *http.Request) {
	p, err := c.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, toResponse(p))
}

// List handles GET /api/posts?page=&size=.
func (c *PostController) List(w http.ResponseWriter, r *http.Request) {
	page, err := helpers.QueryInt(r, "page", svc.DefaultPage)
	if err != nil {
		errors.WriteError(w, err)
		return
	}
	size, err := helpers.QueryInt(r, "size", svc.DefaultSize)
	if err != nil {
		errors.WriteError(w, err)
		return
	}

	res, err := c.service.List(r.Context(), page, size)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := dto.ListPostsResponse{
		Posts:       make([]dto.PostResponse, 0, len(res.Posts)),
		CurrentPage: res.Page,
		TotalPages:  res.TotalPages,
		TotalPosts:  res.Total,
	}
	for _, p := range res.Posts {
		out.Posts = append(out.Posts, toResponse(p))
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// Delete handles DELETE /api/posts/{id}.
func (c *PostController) Delete(w http.ResponseWriter, r *http.Request) {
	if err := c.service.Delete(r.Context(), mw.GetUserID(r.Context()), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, r, err)
		return
	}
	helpers.WriteJSON(w, http.StatusOK, dto.DeletePostResponse{Message: "post deleted"})
}

func toResponse(p repository.Post) dto.PostResponse {
	mediaIDs := p.MediaIDs
	if mediaIDs == nil {
		mediaIDs = []string{}
	}
	return dto.PostResponse{
		ID:        p.ID,
		UserID:    p.UserID,
		Content:   p.Content,
		MediaIDs:  mediaIDs,
		CreatedAt: p.CreatedAt,
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validation.Errors
	switch {
	case stderrors.As(err, &verrs):
		errors.WriteError(w, errors.ErrValidation.WithDetail(verrs.Error()))
	case stderrors.Is(err, svc.ErrNotFound):
		errors.WriteError(w, errors.ErrNotFound.WithDetail("post not found"))
	default:
		logger.From(r.Context()).Error("post request failed", logger.Err(err))
		errors.WriteError(w, errors.ErrInternalServerError.WithCause(err))
	}
}
