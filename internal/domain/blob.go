package domain

import (
	"context"
	"io"
	"time"
)

// BlobWriter uploads archive objects to cold storage.
type BlobWriter interface {
	// Put uploads data in a single request.
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	// PutMultipart uploads data in parts of partSize bytes, for payloads
	// too large for a single request.
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// BlobInfo describes one stored archive object.
type BlobInfo struct {
	Path         string
	Size         int64
	LastModified time.Time
}

// BlobReader retrieves and enumerates archive objects.
type BlobReader interface {
	// Get returns the object body; the caller closes it. Missing objects
	// report ErrNotFound.
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	// List returns metadata for every object under the prefix.
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	// Exists reports whether an object is present at path.
	Exists(ctx context.Context, path string) (bool, error)
}
