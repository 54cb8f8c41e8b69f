package object

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound      = errors.New("object not found")
	ErrAccessDenied  = errors.New("object access denied")
	ErrQuotaExceeded = errors.New("object quota exceeded")
)

// ObjectInfo describes a listed object.
type ObjectInfo struct {
	Key       string
	SizeBytes int64
}

// ObjectStore defines the contract for listing, reading and writing binary objects by key.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	SaveWithKey(ctx context.Context, key string, contentType string, r io.Reader) (int64, error)
}
