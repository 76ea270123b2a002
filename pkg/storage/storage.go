// Package storage persists generated images. Local writes files under a
// directory; S3 writes objects to a bucket (AWS or any S3-compatible
// endpoint).
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
)

// ErrNotFound is returned by Get for a missing object.
var ErrNotFound = errors.New("storage: not found")

// Store holds named blobs. Names are forward-slash paths relative to the
// store root. Implementations are safe for concurrent use.
type Store interface {
	// Put stores data under name, replacing any previous object, and returns
	// a location a user can open (a file path or an s3:// URI).
	Put(ctx context.Context, name, contentType string, data []byte) (string, error)

	// Get returns ErrNotFound when the object is missing.
	Get(ctx context.Context, name string) ([]byte, error)

	// Delete removes name. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error

	Exists(ctx context.Context, name string) (bool, error)
}

// cleanName rejects names that are empty or escape the store root.
func cleanName(name string) (string, error) {
	if name == "" {
		return "", errors.New("storage: empty name")
	}
	clean := path.Clean("/" + name)[1:]
	if clean == "" || clean != strings.TrimPrefix(name, "/") || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("storage: invalid name %q", name)
	}
	return clean, nil
}
