// Package router defines the backend communication layer the storage service
// talks through. A Router hides where blob bytes actually live; the frontend
// only ever sees blob IDs and streams.
package router

import (
	"context"
	"errors"
	"io"
)

// ErrBlobNotFound is returned when the requested blob does not exist.
var ErrBlobNotFound = errors.New("router: blob not found")

// ErrClosed is returned by every operation after Close.
var ErrClosed = errors.New("router: closed")

// BlobInfo describes one stored blob in a listing.
type BlobInfo struct {
	ID   string `json:"id"`
	Size int64  `json:"size"`
}

// Router moves blob bytes between the frontend and the backing store.
//
// Implementations must be safe for concurrent use: the request-handler
// workers call into the router in parallel. Close releases backend
// resources; operations after Close fail with ErrClosed.
type Router interface {
	// PutBlob stores the blob under id. size is the declared length in
	// bytes, -1 when unknown.
	PutBlob(ctx context.Context, id string, body io.Reader, size int64) error

	// GetBlob returns a stream of the blob's bytes and its size. The
	// caller must close the stream.
	GetBlob(ctx context.Context, id string) (io.ReadCloser, int64, error)

	// DeleteBlob removes the blob. Fails with ErrBlobNotFound if it does
	// not exist.
	DeleteBlob(ctx context.Context, id string) error

	// ListBlobs returns every stored blob.
	ListBlobs(ctx context.Context) ([]BlobInfo, error)

	// Close releases backend resources. Idempotent.
	Close() error
}
