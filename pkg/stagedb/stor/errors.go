package stor

import "errors"

var (
	// ErrValidation marks a rejected argument; nothing was changed.
	ErrValidation = errors.New("invalid argument")

	// ErrNotFound marks a lookup that matched no record visible to the
	// calling context.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks a violated uniqueness invariant, e.g. a second
	// active ingest for the same digital object.
	ErrConflict = errors.New("conflict")

	// ErrPersistence marks a failed backing-store transaction. The
	// transaction has been rolled back.
	ErrPersistence = errors.New("persistence failure")

	ErrNotImplemented = errors.New("not implemented")
)
