package domain

import (
	"context"
	"io"
)

// BlobWriter uploads objects to cold storage. The transcript archiver mirrors
// pinned bundles and audit exports there for long-term retention.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader downloads archived objects.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
}
