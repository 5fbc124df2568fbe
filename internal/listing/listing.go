// Package listing exposes the two denormalized media fields on directory
// listing records. The ingestion pipeline is their only writer; everything
// else about a listing belongs to other subsystems.
package listing

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an owner ref does not resolve to a listing.
var ErrNotFound = errors.New("listing not found")

// Media is the listing's denormalized view of its attached images.
type Media struct {
	PrimaryImageURL string   `json:"primaryImageUrl" firestore:"primaryImageUrl"`
	ImageURLs       []string `json:"imageUrls" firestore:"imageUrls"`
}

// Store reads and writes the media fields of a listing record.
type Store interface {
	GetMedia(ctx context.Context, ownerRef string) (*Media, error)
	SetMedia(ctx context.Context, ownerRef string, media Media) error
}
