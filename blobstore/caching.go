package blobstore

import (
	"context"
	"sync"
)

// CachingStore wraps a BlobStore with a byte-bounded read-through cache.
// Snapshots are immutable once written, so cached entries never go stale;
// Delete still evicts to keep the view coherent.
type CachingStore struct {
	inner    BlobStore
	maxBytes int64

	mu    sync.Mutex
	bytes int64
	cache map[string][]byte
	order []string // oldest first
}

// NewCachingStore wraps inner with a cache holding at most maxBytes of blob
// data. Blobs larger than the whole budget bypass the cache.
func NewCachingStore(inner BlobStore, maxBytes int64) *CachingStore {
	return &CachingStore{
		inner:    inner,
		maxBytes: maxBytes,
		cache:    make(map[string][]byte),
	}
}

// Open opens a blob, serving it from the cache when possible.
func (s *CachingStore) Open(ctx context.Context, name string) (Blob, error) {
	s.mu.Lock()
	if data, ok := s.cache[name]; ok {
		s.mu.Unlock()
		return &memoryBlob{data: data}, nil
	}
	s.mu.Unlock()

	data, err := ReadAll(ctx, s.inner, name)
	if err != nil {
		return nil, err
	}
	s.admit(name, data)
	return &memoryBlob{data: data}, nil
}

func (s *CachingStore) admit(name string, data []byte) {
	size := int64(len(data))
	if size > s.maxBytes {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cache[name]; ok {
		return
	}
	for s.bytes+size > s.maxBytes && len(s.order) > 0 {
		oldest := s.order[0]
		s.order = s.order[1:]
		s.bytes -= int64(len(s.cache[oldest]))
		delete(s.cache, oldest)
	}
	s.cache[name] = data
	s.order = append(s.order, name)
	s.bytes += size
}

// Create delegates to the inner store.
func (s *CachingStore) Create(ctx context.Context, name string) (WritableBlob, error) {
	return s.inner.Create(ctx, name)
}

// Put delegates to the inner store and evicts any cached copy.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.evict(name)
	return s.inner.Put(ctx, name, data)
}

// Delete delegates to the inner store and evicts any cached copy.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.evict(name)
	return s.inner.Delete(ctx, name)
}

// List delegates to the inner store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

func (s *CachingStore) evict(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if data, ok := s.cache[name]; ok {
		s.bytes -= int64(len(data))
		delete(s.cache, name)
		for i, n := range s.order {
			if n == name {
				s.order = append(s.order[:i], s.order[i+1:]...)
				break
			}
		}
	}
}
