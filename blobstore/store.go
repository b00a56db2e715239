// Package blobstore abstracts the storage that population snapshots are
// exported to and imported from.
//
// Implementations must be safe for concurrent use.
//
//   - MemoryStore: in-memory, for tests
//   - LocalStore: local filesystem with atomic writes
//   - s3.Store: Amazon S3 with range reads and streaming uploads
//   - minio.Store: MinIO and other S3-compatible storage
package blobstore

import (
	"context"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies
// errors.Is(err, ErrNotFound). The default maps to os.ErrNotExist.
var ErrNotFound = os.ErrNotExist

// BlobStore stores immutable snapshot blobs by name.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)

	// Create creates a blob for streaming writes. The blob becomes
	// visible when Close returns nil.
	Create(ctx context.Context, name string) (WritableBlob, error)

	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes a blob.
	Delete(ctx context.Context, name string) error

	// List returns the blob names with the given prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to one stored snapshot.
type Blob interface {
	// ReadAt reads len(p) bytes starting at offset off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)

	// ReadRange returns a reader over [off, off+length).
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)

	// Size returns the size of the blob in bytes.
	Size() int64

	Close() error
}

// WritableBlob is a streaming write handle.
type WritableBlob interface {
	io.Writer

	// Sync flushes buffered data where the backend supports it.
	Sync() error

	// Close finalizes the blob.
	Close() error

	// Abort discards the blob without publishing it. Call it instead of
	// Close when the write failed partway; a no-op after Close or a
	// previous Abort.
	Abort() error
}

// NopReadCloser wraps a reader with a no-op Close.
func NopReadCloser(r io.Reader) io.ReadCloser {
	return io.NopCloser(r)
}
