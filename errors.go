package tokenscope

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("explorer is closed")

	// ErrNoDataset is returned when no dataset has been selected yet.
	ErrNoDataset = errors.New("no dataset selected")

	// ErrTableNotReady is returned when the token table for the active
	// selection has not finished loading.
	ErrTableNotReady = errors.New("token table not loaded")

	// ErrSuperseded is returned to callers whose in-flight work was
	// invalidated by a newer Select. The result is discarded; nothing
	// is written into the new session's cache.
	ErrSuperseded = errors.New("selection superseded")
)

// ErrOutOfRange indicates a token identifier outside [0, vocabSize).
// No fetch is attempted.
type ErrOutOfRange struct {
	ID        int
	VocabSize int
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("token id %d out of range [0, %d)", e.ID, e.VocabSize)
}

// ErrShardOutOfRange indicates a shard index outside [0, numShards).
type ErrShardOutOfRange struct {
	Shard     int
	NumShards int
}

func (e *ErrShardOutOfRange) Error() string {
	return fmt.Sprintf("shard index %d out of range [0, %d)", e.Shard, e.NumShards)
}

// ErrTransport indicates a failed artifact fetch.
//
// The underlying error can be accessed via errors.Unwrap.
type ErrTransport struct {
	Artifact string
	cause    error
}

func (e *ErrTransport) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Artifact, e.cause)
}

func (e *ErrTransport) Unwrap() error { return e.cause }

// ErrDecode indicates a malformed artifact payload: an unrecognized
// compression container, invalid JSON, or content inconsistent with
// the manifest.
//
// The underlying error can be accessed via errors.Unwrap.
type ErrDecode struct {
	Artifact string
	cause    error
}

func (e *ErrDecode) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Artifact, e.cause)
}

func (e *ErrDecode) Unwrap() error { return e.cause }
