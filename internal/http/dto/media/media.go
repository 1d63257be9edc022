// Package media holds the response bodies of the media endpoints.
package media

import "time"

type MediaResponse struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	OriginalName string    `json:"originalName"`
	MimeType     string    `json:"mimeType"`
	URL          string    `json:"url"`
	CreatedAt    time.Time `json:"createdAt"`
}

type UploadResponse struct {
	MediaID string `json:"mediaId"`
	URL     string `json:"url"`
}

type ListMediaResponse struct {
	Results []MediaResponse `json:"results"`
}
