package ingest

import (
	"errors"
	"fmt"

	"github.com/frietkaart/media-ingest/internal/meta"
)

// ValidationError reports a file rejected by policy before any I/O.
// It is never retried automatically.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// TransferError reports a blob-store failure mid-pipeline. The orchestrator
// does not retry; the caller decides whether to re-attempt the ingestion.
type TransferError struct {
	Stage Stage
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer failed during %s: %v", e.Stage, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// IsNotFound reports whether err means the target record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, meta.ErrNotFound)
}
