// Package ingest implements the media ingestion pipeline: validate an
// uploaded image, store the original and a derived thumbnail in the blob
// store, persist an image record, and keep the owning listing's denormalized
// media fields consistent.
package ingest

import (
	"fmt"
	"path"
	"slices"
	"strings"
)

// Scope names the two ingestion variants.
type Scope string

const (
	ScopeGallery Scope = "gallery"
	ScopeListing Scope = "listing"
)

// Policy parametrizes one pipeline per ingestion variant: size ceiling,
// type allow-list, whether a separate derivative object is produced, and
// the storage-path templates.
type Policy struct {
	Scope        Scope
	MaxBytes     int64
	AllowedTypes []string

	// Derivative controls whether a thumbnail object is stored separately.
	// Without it the record's derivative URL mirrors the original.
	Derivative  bool
	ThumbWidth  int
	ThumbHeight int

	// KeyPrefix and DerivativePrefix are storage-path templates; the
	// "{owner}" placeholder expands to the owner ref.
	KeyPrefix        string
	DerivativePrefix string
}

// GalleryPolicy covers gallery-wide images: 10 MiB ceiling, GIFs allowed,
// thumbnails under a sibling prefix sharing the original's filename.
func GalleryPolicy() Policy {
	return Policy{
		Scope:            ScopeGallery,
		MaxBytes:         10 << 20,
		AllowedTypes:     []string{"image/jpeg", "image/png", "image/webp", "image/gif"},
		Derivative:       true,
		ThumbWidth:       400,
		ThumbHeight:      400,
		KeyPrefix:        "gallery",
		DerivativePrefix: "gallery/thumbnails",
	}
}

// ListingPolicy covers per-listing images: a 50 MiB ceiling (deliberately
// higher than the gallery's), no GIFs, no separate derivative object.
func ListingPolicy() Policy {
	return Policy{
		Scope:        ScopeListing,
		MaxBytes:     50 << 20,
		AllowedTypes: []string{"image/jpeg", "image/png", "image/webp"},
		KeyPrefix:    "friteries/images/{owner}",
	}
}

// Validate enforces the type and size policy. It runs before any I/O; an
// invalid file must never reach the blob store.
func (p Policy) Validate(up Upload) error {
	mime := strings.ToLower(up.MimeType)
	if !slices.Contains(p.AllowedTypes, mime) {
		return &ValidationError{Reason: fmt.Sprintf("unsupported type %q (allowed: %s)",
			up.MimeType, strings.Join(p.AllowedTypes, ", "))}
	}
	if size := int64(len(up.Data)); size > p.MaxBytes {
		return &ValidationError{Reason: fmt.Sprintf("file size %s exceeds the %s limit",
			FormatByteSize(size), FormatByteSize(p.MaxBytes))}
	}
	return nil
}

// ObjectKey builds the blob key for an original under this policy.
func (p Policy) ObjectKey(ownerRef, name string) string {
	return path.Join(expandPrefix(p.KeyPrefix, ownerRef), name)
}

// DerivativeKey builds the blob key for the thumbnail sibling of name.
func (p Policy) DerivativeKey(ownerRef, name string) string {
	return path.Join(expandPrefix(p.DerivativePrefix, ownerRef), name)
}

func expandPrefix(prefix, ownerRef string) string {
	return strings.ReplaceAll(prefix, "{owner}", ownerRef)
}
