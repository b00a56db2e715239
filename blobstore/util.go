package blobstore

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"
)

// ReadAll reads an entire blob into memory.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	b, err := store.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

// PutAll writes several blobs concurrently, bounded by parallelism. The
// first error cancels the remaining writes.
func PutAll(ctx context.Context, store BlobStore, blobs map[string][]byte, parallelism int) error {
	if parallelism <= 0 {
		parallelism = 4
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for name, data := range blobs {
		name, data := name, data
		g.Go(func() error {
			return store.Put(ctx, name, data)
		})
	}
	return g.Wait()
}

// Copy streams one blob from src to dst.
func Copy(ctx context.Context, dst, src BlobStore, name string) error {
	b, err := src.Open(ctx, name)
	if err != nil {
		return err
	}
	defer b.Close()

	rc, err := b.ReadRange(ctx, 0, b.Size())
	if err != nil {
		return err
	}
	defer rc.Close()

	w, err := dst.Create(ctx, name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, rc); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}
