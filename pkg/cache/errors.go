package cache

import "errors"

var (
	// ErrMiss is returned by a Tier when the key is absent.
	ErrMiss = errors.New("cache miss")

	// ErrUnavailable marks a tier that could not be reached. The coordinator
	// logs it and degrades; it never reaches callers of Tiered.
	ErrUnavailable = errors.New("cache unavailable")
)
