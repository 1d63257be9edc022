package post

import (
	"time"

	"github.com/dropDatabas3/postmesh/internal/domain/repository"
	"github.com/dropDatabas3/postmesh/internal/event"
)

// postEntity adapts a post to event.Entity.
type postEntity repository.Post

var _ event.Entity = postEntity{}

func (p postEntity) EventEntity() string { return "post" }

func (p postEntity) EventKey() string { return p.ID }

func (p postEntity) EventPayload(kind event.Kind) map[string]any {
	if kind == event.Deleted {
		mediaIDs := p.MediaIDs
		if mediaIDs == nil {
			mediaIDs = []string{}
		}
		return map[string]any{
			"postId":   p.ID,
			"userId":   p.UserID,
			"mediaIds": mediaIDs,
		}
	}
	return map[string]any{
		"postId":    p.ID,
		"userId":    p.UserID,
		"content":   p.Content,
		"createdAt": p.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}
