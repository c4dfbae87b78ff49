// Package memory implements an in-memory router, used for development and
// tests. Blobs live in a map for the lifetime of the process.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/blobfront/blobfront/pkg/router"
)

// Router stores blobs in memory.
type Router struct {
	mu     sync.RWMutex
	blobs  map[string][]byte
	closed bool
}

// New creates an empty in-memory router.
func New() *Router {
	return &Router{blobs: make(map[string][]byte)}
}

// PutBlob copies the body into memory under id.
func (r *Router) PutBlob(ctx context.Context, id string, body io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("memory router: blob id is required")
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("memory router: read body: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("memory router: expected %d bytes, got %d", size, len(data))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return router.ErrClosed
	}
	r.blobs[id] = data
	return nil
}

// GetBlob returns a reader over the stored bytes.
func (r *Router) GetBlob(ctx context.Context, id string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, 0, router.ErrClosed
	}
	data, ok := r.blobs[id]
	if !ok {
		return nil, 0, fmt.Errorf("blob %s: %w", id, router.ErrBlobNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// DeleteBlob removes the blob from the map.
func (r *Router) DeleteBlob(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return router.ErrClosed
	}
	if _, ok := r.blobs[id]; !ok {
		return fmt.Errorf("blob %s: %w", id, router.ErrBlobNotFound)
	}
	delete(r.blobs, id)
	return nil
}

// ListBlobs returns every stored blob sorted by ID.
func (r *Router) ListBlobs(ctx context.Context) ([]router.BlobInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return nil, router.ErrClosed
	}
	out := make([]router.BlobInfo, 0, len(r.blobs))
	for id, data := range r.blobs {
		out = append(out, router.BlobInfo{ID: id, Size: int64(len(data))})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close drops all stored blobs.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	r.blobs = nil
	return nil
}
