package localstore

import (
	"context"
	"errors"
)

// Revision identifies the stored content of a key. Writers pass the revision
// they last observed so concurrent modifications are detected instead of lost.
type Revision string

// AnyRevision skips the compare-and-swap check, unconditionally replacing the value.
const AnyRevision Revision = "*"

// NoRevision asserts the key must not exist yet.
const NoRevision Revision = ""

var (
	// ErrNotFound is returned when the requested key has no stored value.
	ErrNotFound = errors.New("localstore: key not found")
	// ErrRevisionMismatch is returned when the expected revision no longer matches.
	ErrRevisionMismatch = errors.New("localstore: revision mismatch")
	// ErrInvalidKey is returned for keys outside the allowed character set.
	ErrInvalidKey = errors.New("localstore: invalid key")
	// ErrClosed is returned when the store has been shut down.
	ErrClosed = errors.New("localstore: store closed")
)

// Event describes an observed change to a key, either from this process or an
// external writer touching the underlying files.
type Event struct {
	Key      string
	Revision Revision
	Deleted  bool
}

// Store is a small key/value store with compare-and-swap semantics and change
// notification. Values are opaque byte slices, one JSON document per key.
type Store interface {
	// Get returns the stored value and its revision. ErrNotFound when absent.
	Get(ctx context.Context, key string) ([]byte, Revision, error)
	// Put replaces the value when the expected revision still matches.
	// AnyRevision bypasses the check; NoRevision requires the key be absent.
	Put(ctx context.Context, key string, data []byte, expected Revision) (Revision, error)
	// Delete removes the key under the same compare-and-swap policy.
	Delete(ctx context.Context, key string, expected Revision) error
	// Subscribe delivers change events for keys under the given prefix until
	// the returned cancel function is called or the context ends.
	Subscribe(ctx context.Context, prefix string) (<-chan Event, func(), error)
}
