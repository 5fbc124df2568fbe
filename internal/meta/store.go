package meta

import (
	"context"
	"errors"
)

// ErrNotFound is returned when an id does not resolve to a record.
var ErrNotFound = errors.New("image record not found")

// Store is the injected document-store dependency.
//
// Update takes a partial record as field-name -> value pairs using the
// persisted (firestore tag) field names. Query returns records ordered by
// UploadedAt descending.
type Store interface {
	Create(ctx context.Context, rec *Record) (id string, err error)
	Get(ctx context.Context, id string) (*Record, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	Delete(ctx context.Context, id string) error
	Query(ctx context.Context, f Filters) ([]Record, error)
}
