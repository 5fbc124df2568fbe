// Package meta persists the descriptive records behind ingested media in a
// document store (Firestore in production, a map-backed store in tests).
package meta

import "time"

// Counter names accepted by increment operations.
const (
	CounterLikes     = "likeCount"
	CounterDownloads = "downloadCount"
)

// Record is the persisted unit of gallery/directory media. The descriptive
// attributes (ByteSize, MimeType, Width, Height, UploadedBy, UploadedAt) are
// immutable after creation; a re-upload creates a new record.
type Record struct {
	// ID is assigned by the document store on creation.
	ID string `json:"id" firestore:"-"`

	// OwnerRef identifies the owning directory listing. Empty means the
	// record belongs to the gallery-wide scope and has no owner.
	OwnerRef string `json:"ownerRef" firestore:"ownerRef"`

	OriginalURL   string `json:"originalUrl" firestore:"originalUrl"`
	DerivativeURL string `json:"derivativeUrl" firestore:"derivativeUrl"`

	// StorageKey is the blob key of the original; the derivative shares the
	// filename under a sibling thumbnails prefix, so one key deletes both.
	StorageKey string `json:"storageKey" firestore:"storageKey"`

	ByteSize int64  `json:"byteSize" firestore:"byteSize"`
	MimeType string `json:"mimeType" firestore:"mimeType"`
	Width    int    `json:"width" firestore:"width"`
	Height   int    `json:"height" firestore:"height"`

	UploadedBy string    `json:"uploadedBy" firestore:"uploadedBy"`
	UploadedAt time.Time `json:"uploadedAt" firestore:"uploadedAt"`

	// IsPrimary marks the owner's representative image. At most one record
	// per non-empty OwnerRef may have it set.
	IsPrimary bool `json:"isPrimary" firestore:"isPrimary"`

	LikeCount     int64 `json:"likeCount" firestore:"likeCount"`
	DownloadCount int64 `json:"downloadCount" firestore:"downloadCount"`

	Tags           []string `json:"tags" firestore:"tags"`
	Category       string   `json:"category" firestore:"category"`
	Title          string   `json:"title" firestore:"title"`
	Description    string   `json:"description" firestore:"description"`
	VisibilityTier string   `json:"visibilityTier" firestore:"visibilityTier"`
	Featured       bool     `json:"featured" firestore:"featured"`
}

// Filters narrows Query results. Nil fields are ignored. OwnerRef
// distinguishes "any owner" (nil) from the gallery scope (pointer to "").
//
// Tag containment is always applied in-process after the fetch: the document
// query model cannot combine an array-containment filter with the other
// equality filters.
type Filters struct {
	OwnerRef       *string
	Category       *string
	VisibilityTier *string
	Featured       *bool
	Tag            string
}

func filterByTag(records []Record, tag string) []Record {
	if tag == "" {
		return records
	}
	out := records[:0]
	for _, rec := range records {
		for _, t := range rec.Tags {
			if t == tag {
				out = append(out, rec)
				break
			}
		}
	}
	return out
}
