package artifact

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when an artifact does not exist
var ErrNotFound = errors.New("artifact not found")

// Info describes a stored artifact
type Info struct {
	Bucket      Bucket
	Name        string
	Size        int64
	ContentType string
	ModTime     time.Time
}

// Object is an open artifact. Callers must close it.
type Object interface {
	io.ReadCloser
	Info() Info
}

// Store is the port for artifact persistence
// Implementations must never expose partially written content to Get
type Store interface {
	// Put writes r under bucket/name, creating the bucket if needed and
	// overwriting any existing artifact with the same name
	Put(ctx context.Context, bucket Bucket, name string, r io.Reader) (Info, error)

	// Get opens bucket/name for reading; returns ErrNotFound if absent
	Get(ctx context.Context, bucket Bucket, name string) (Object, error)

	// Stat returns metadata for bucket/name; returns ErrNotFound if absent
	Stat(ctx context.Context, bucket Bucket, name string) (Info, error)
}

// LocalPather is implemented by stores that keep artifacts on the local disk.
// The returned path must not be written to.
type LocalPather interface {
	LocalPath(bucket Bucket, name string) (string, error)
}

// Lister is implemented by stores that can enumerate a bucket by name prefix
type Lister interface {
	List(ctx context.Context, bucket Bucket, prefix string) ([]Info, error)
}
