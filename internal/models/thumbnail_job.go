package models

import "time"

// ThumbnailJob asks the pipeline to build resized copies of an image upload.
type ThumbnailJob struct {
	ID          string    `json:"jobId"`
	FileID      string    `json:"fileId"`
	UserID      string    `json:"userId"`
	RequestedAt time.Time `json:"requestedAt"`
}

// ThumbnailWidths are the pixel widths derived from every image upload.
var ThumbnailWidths = []int{100, 250, 500}
