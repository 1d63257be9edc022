// Package media serves the media endpoints.
package media

import (
	stderrors "errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	dto "github.com/dropDatabas3/postmesh/internal/http/dto/media"
	"github.com/dropDatabas3/postmesh/internal/http/errors"
	"github.com/dropDatabas3/postmesh/internal/http/helpers"
	mw "github.com/dropDatabas3/postmesh/internal/http/middlewares"
	svc "github.com/dropDatabas3/postmesh/internal/http/services/media"
	"github.com/dropDatabas3/postmesh/internal/observability/logger"
)

// MaxUploadBytes caps one uploaded file.
const MaxUploadBytes = 10 << 20

type MediaController struct {
	service svc.MediaService
}

func NewMediaController(service svc.MediaService) *MediaController {
	return &MediaController{service: service}
}

// Upload handles POST /api/media as multipart/form-data with a "file" part.
func (c *MediaController) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes+(1<<20))
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			errors.WriteError(w, errors.ErrBodyTooLarge)
			return
		}
		errors.WriteError(w, errors.ErrBadRequest.WithDetail("multipart form with a file part is required"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		errors.WriteError(w, errors.ErrBadRequest.WithDetail("file is required"))
		return
	}
	defer file.Close()

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	m, err := c.service.Upload(r.Context(), svc.Upload{
		UserID:       mw.GetUserID(r.Context()),
		OriginalName: header.Filename,
		MimeType:     mimeType,
		Body:         file,
	})
	if err != nil {
		logger.From(r.Context()).Error("media upload failed", logger.Err(err))
		errors.WriteError(w, errors.ErrInternalServerError.WithCause(err))
		return
	}
	helpers.WriteJSON(w, http.StatusCreated, dto.UploadResponse{MediaID: m.ID, URL: m.URL})
}

// List handles GET /api/media.
func (c *MediaController) List(w http.ResponseWriter, r *http.Request) {
	all, err := c.service.List(r.Context())
	if err != nil {
		logger.From(r.Context()).Error("media list failed", logger.Err(err))
		errors.WriteError(w, errors.ErrInternalServerError.WithCause(err))
		return
	}
	out := dto.ListMediaResponse{Results: make([]dto.MediaResponse, 0, len(all))}
	for _, m := range all {
		out.Results = append(out.Results, dto.MediaResponse{
			ID:           m.ID,
			UserID:       m.UserID,
			OriginalName: m.OriginalName,
			MimeType:     m.MimeType,
			URL:          m.URL,
			CreatedAt:    m.CreatedAt,
		})
	}
	helpers.WriteJSON(w, http.StatusOK, out)
}

// Content handles GET /api/media/{id}/content.
func (c *MediaController) Content(w http.ResponseWriter, r *http.Request) {
	m, rc, err := c.service.Open(r.Context(), chi.URLParam(r, "id"))
	if stderrors.Is(err, svc.ErrNotFound) {
		errors.WriteError(w, errors.ErrNotFound.WithDetail("media not found"))
		return
	}
	if err != nil {
		logger.From(r.Context()).Error("media open failed", logger.Err(err))
		errors.WriteError(w, errors.ErrInternalServerError.WithCause(err))
		return
	}
	defer rc.Close()

	h := w.Header()
	h.Set("Content-Type", m.MimeType)
	h.Set("X-Content-Type-Options", "nosniff")
	if !inlineSafe(m.MimeType) {
		h.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": m.OriginalName}))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, rc)
}

// inlineSafe reports whether a stored type may render in the browser. SVG is an
// image that can carry script, so it is served as an attachment.
func inlineSafe(mimeType string) bool {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(mt, "image/") && mt != "image/svg+xml"
}
