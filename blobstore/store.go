// Package blobstore abstracts access to immutable dataset artifacts.
//
// Artifacts (manifest, token table, neighbor shards) are small-to-medium
// immutable blobs read in full, so the interface is byte-oriented rather
// than streaming. Backends exist for HTTP, the local filesystem, memory
// (tests), S3 and MinIO.
package blobstore

import (
	"context"
	"os"
)

// ErrNotFound is returned when an artifact does not exist.
//
// Implementations should return an error that satisfies
// `errors.Is(err, ErrNotFound)`. The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store fetches named artifacts.
type Store interface {
	// Fetch retrieves the named artifact in full.
	// The returned slice is owned by the caller.
	Fetch(ctx context.Context, name string) ([]byte, error)
}
