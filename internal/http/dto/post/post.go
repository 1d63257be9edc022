// Package post holds the request and response bodies of the post endpoints.
package post

import "time"

type CreatePostRequest struct {
	Content  string   `json:"content"`
	MediaIDs []string `json:"mediaIds"`
}

type PostResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Content   string    `json:"content"`
	MediaIDs  []string  `json:"mediaIds"`
	CreatedAt time.Time `json:"createdAt"`
}

// ListPostsResponse is one page of posts, newest first.
type ListPostsResponse struct {
	Posts       []PostResponse `json:"posts"`
	CurrentPage int            `json:"currentPage"`
	TotalPages  int            `json:"totalPages"`
	TotalPosts  int            `json:"totalPosts"`
}

type DeletePostResponse struct {
	Message string `json:"message"`
}
