// Package blob abstracts where processed split files live. A Store keeps flat
// objects addressed by slash-separated keys and hands them back as random
// access readers so that one record can be read without fetching the object.
package blob

import (
	"context"
	"io"

	"github.com/turtacn/molx/pkg/errors"
)

// ErrNotFound is returned when a key does not exist.
var ErrNotFound = errors.New(errors.ErrCodeObjectNotFound, "object not found")

// Object is an opened blob.
type Object interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// Store persists blobs.
type Store interface {
	// Put stores size bytes from r under key, replacing any previous object.
	// A size of -1 means unknown.
	Put(ctx context.Context, key string, r io.Reader, size int64) error
	// Open returns a random access handle on key.
	Open(ctx context.Context, key string) (Object, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// List returns the keys starting with prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// Location renders key the way users should see it in logs.
	Location(key string) string
}
