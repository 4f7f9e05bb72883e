package closure

import (
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable means the source of a unit could not be retrieved:
	// the binary was built with -trimpath, the file moved, or the value is
	// not a function.
	ErrSourceUnavailable = errors.New("source unavailable")

	// ErrParse means the source file of a unit no longer parses.
	ErrParse = errors.New("source does not parse")
)

// AnalysisError reports a failure to analyze a unit. These errors are fatal at
// registration time.
type AnalysisError struct {
	Unit string
	Err  error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("closure analysis of %q: %v", e.Unit, e.Err)
}

func (e *AnalysisError) Unwrap() error {
	return e.Err
}

func analysisErr(unit string, sentinel error, format string, args ...any) error {
	return &AnalysisError{
		Unit: unit,
		Err:  fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}
