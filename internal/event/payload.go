package event

import "time"

// PostCreatedPayload is the body of post.created.
type PostCreatedPayload struct {
	PostID    string    `json:"postId"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

func (p *PostCreatedPayload) validate() error {
	if p.PostID == "" {
		return errMissingPostID
	}
	return nil
}

// PostDeletedPayload is the body of post.deleted.
type PostDeletedPayload struct {
	PostID   string   `json:"postId"`
	UserID   string   `json:"userId"`
	MediaIDs []string `json:"mediaIds"`
}

func (p *PostDeletedPayload) validate() error {
	if p.PostID == "" {
		return errMissingPostID
	}
	return nil
}
