package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// Package storage contains the blob store abstraction used by the ingestion
// pipeline. Implementations must avoid local disk and rely on streaming I/O only.

// ErrPathConflict is returned by Put when an object already exists at the
// requested key. Overwrite is never implicit: generated keys embed a
// millisecond timestamp, so a conflict means a genuine collision and must
// surface rather than silently replace content.
var ErrPathConflict = errors.New("storage: object already exists at path")

// DefaultPresignExpiry is the signed-URL lifetime when the caller does not
// specify one.
const DefaultPresignExpiry = 3600 * time.Second

// PutOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known; if unknown, set to -1 and the
// implementation will buffer/chunk as supported by the backend.
type PutOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is an S3-compatible object storage client.
// Implementations must be safe for concurrent calls on unrelated keys.
type Storage interface {
	// Put uploads an object under the given key. It fails with ErrPathConflict
	// if an object already exists at that key.
	Put(ctx context.Context, key string, r io.Reader, opt PutOptions) (ObjectInfo, error)
	// Get retrieves an object's content as a streaming reader alongside its info.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes the given objects. Deleting a missing object is not an
	// error; failures for individual keys are joined into the returned error.
	Delete(ctx context.Context, keys ...string) error
	// PresignGet returns a time-limited URL that can be used to download the
	// object without credentials.
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
	// List returns the objects stored under the given key prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
