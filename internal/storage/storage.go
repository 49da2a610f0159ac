// Package storage reads download objects from an object store.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when the object or bucket does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo is the metadata forwarded to the client with an object.
type ObjectInfo struct {
	// Size is -1 when the store did not report a length.
	Size         int64
	ContentType  string
	ETag         string
	LastModified time.Time
}

// ObjectStore reads objects by bucket and key. Implementations must be safe for
// concurrent use.
type ObjectStore interface {
	// Exists reports whether the object exists.
	Exists(ctx context.Context, bucket, key string) (bool, error)
	// Stat returns the object metadata.
	Stat(ctx context.Context, bucket, key string) (ObjectInfo, error)
	// Open returns a stream of the object body, bound to ctx.
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

// Factory returns an authenticated ObjectStore. It is called only when a
// request resolves to an object store route.
type Factory func(ctx context.Context) (ObjectStore, error)
