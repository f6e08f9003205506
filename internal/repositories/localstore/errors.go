package localstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/vietcart/storefront/internal/platform/localstore"
)

// Error implements repositories.RepositoryError for file store backed repositories.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsNotFound reports whether the error represents a missing key.
func (e *Error) IsNotFound() bool {
	return e != nil && e.notFound
}

// IsConflict reports whether the error represents a conflicting update.
func (e *Error) IsConflict() bool {
	return e != nil && e.conflict
}

// IsUnavailable reports whether the error represents a store failure.
func (e *Error) IsUnavailable() bool {
	return e != nil && e.unavailable
}

func newError(op string, err error) *Error {
	if err == nil {
		return nil
	}

	e := &Error{op: op, err: err}
	switch {
	case errors.Is(err, localstore.ErrNotFound):
		e.notFound = true
	case errors.Is(err, localstore.ErrRevisionMismatch):
		e.conflict = true
	case errors.Is(err, localstore.ErrClosed), errors.Is(err, localstore.ErrInvalidKey):
		e.unavailable = true
	default:
		e.unavailable = true
	}
	return e
}

// WrapError annotates store errors with repository semantics. Context cancellations are passed through.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return newError(op, err)
}

func notFoundError(op string) *Error {
	return &Error{op: op, err: localstore.ErrNotFound, notFound: true}
}

func conflictError(op string) *Error {
	return &Error{op: op, err: localstore.ErrRevisionMismatch, conflict: true}
}
