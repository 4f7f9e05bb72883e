package recorder

import (
	"errors"
	"fmt"
)

var (
	// ErrNoClient means a prompt unit found no model client for its model.
	ErrNoClient = errors.New("no model client")

	// ErrDuplicateName means another unit is already tracked under the name.
	ErrDuplicateName = errors.New("unit name already tracked")

	// ErrNotTracked is returned by Call on a zero LMP handle.
	ErrNotTracked = errors.New("lmp is not tracked")
)

// TrackingError reports a failure to record a call. It is only returned when
// tracking is required; otherwise such failures are logged and the call's
// result is returned as usual. Call returns the body's output alongside a
// TrackingError.
type TrackingError struct {
	Op   string // "register" or "record"
	Name string
	Err  error
}

func (e *TrackingError) Error() string {
	return fmt.Sprintf("tracking %s of %q: %v", e.Op, e.Name, e.Err)
}

func (e *TrackingError) Unwrap() error {
	return e.Err
}
