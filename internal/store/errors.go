package store

import "errors"

var (
	// ErrNotFound is returned by single-row reads when no row matches.
	ErrNotFound = errors.New("not found")

	// ErrVersionNotCommitted means an invocation referenced a version row
	// that does not exist. Callers must register the version first.
	ErrVersionNotCommitted = errors.New("lmp version not committed")
)
