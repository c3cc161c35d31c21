package models

// ListingSnapshot carries the listing fields a conversation displays. It is a
// read-only view over the marketplace's listing catalog.
type ListingSnapshot struct {
	ID           int      `db:"id" json:"id"`
	Title        string   `db:"title" json:"title"`
	Price        int64    `db:"price" json:"price"`
	ThumbnailURL string   `db:"thumbnail_url" json:"thumbnail_url,omitempty"`
	Images       []string `json:"images,omitempty"`
}
