package storage

import (
	"context"
	"errors"
	"io"
)

// Sentinel errors for storage backends.
var (
	ErrObjectExists   = errors.New("object already exists at path")
	ErrObjectNotFound = errors.New("object not found")
)

// ObjectStore defines the interface for object storage backends.
// This allows swapping the local filesystem for S3 or other backends.
//
// Upload is deliberately create-only: writing to an existing path fails
// with ErrObjectExists instead of overwriting, so a retried upload can
// never clobber a concurrent uploader's object at a colliding path.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data io.Reader, size int64, contentType string) (string, error)
	Delete(ctx context.Context, paths []string) error
	List(ctx context.Context, prefix string) ([]string, error)
}
