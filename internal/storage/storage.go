package storage

import (
	"context"
	"io"
	"time"
)

// PutResult reports where the store placed a blob and how many bytes it
// holds. The stored path may differ from the hinted path.
type PutResult struct {
	Path string
	Size int64
}

// BlobStore is the content-store boundary. Files are opaque blobs; the
// backend only ever hints at a path and records what the store returns.
type BlobStore interface {
	Put(ctx context.Context, hintedPath string, reader io.Reader, size int64, contentType string) (PutResult, error)
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	PresignedGetURL(ctx context.Context, path string, expiry time.Duration) (string, error)
}
