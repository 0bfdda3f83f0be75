package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo describes a stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves data from object storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobDeleter removes objects from storage. Used only by the explicit
// post-verification cleanup step, never by the archiver itself.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// Archiver copies a resolved contract's final state and full bet history to
// cold storage. Deletion from the primary store is a separate, explicit step
// taken only after the archive has been verified.
type Archiver interface {
	ArchiveContract(ctx context.Context, contractID string) (int64, error)
}
