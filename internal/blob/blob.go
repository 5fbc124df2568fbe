// Package blob defines the object-storage contract the ingestion pipeline
// depends on, together with an S3-compatible implementation (MinIO) and an
// in-memory implementation for tests.
package blob

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get and Delete when no object exists for a key.
var ErrNotFound = errors.New("blob not found")

// ProgressFunc receives byte-level transfer progress during Put.
// total is the full object size; transferred is monotonically non-decreasing.
type ProgressFunc func(transferred, total int64)

// Store is the injected object-storage dependency. Put returns the durable
// retrieval URL of the stored object.
type Store interface {
	Put(ctx context.Context, key, contentType string, data []byte, progress ProgressFunc) (url string, err error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// progressReader wraps a reader and reports cumulative bytes read.
type progressReader struct {
	r           io.Reader
	total       int64
	transferred int64
	report      ProgressFunc
}

func newProgressReader(r io.Reader, total int64, report ProgressFunc) io.Reader {
	if report == nil {
		return r
	}
	return &progressReader{r: r, total: total, report: report}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.transferred += int64(n)
		p.report(p.transferred, p.total)
	}
	return n, err
}
