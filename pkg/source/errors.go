package source

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by fetchers when the source has no record for
	// the caller. Adapters turn it into an Ok result with Found=false.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable marks a source skipped because its circuit is open.
	ErrUnavailable = errors.New("source unavailable")

	// ErrTimeout marks a fetch abandoned at the adapter's deadline.
	ErrTimeout = errors.New("source timed out")
)

// FetchError wraps a failure with the source it came from.
type FetchError struct {
	Source string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
