// Package source wraps slow upstream lookups (memory, directory,
// availability) behind a uniform, bounded, never-failing Adapter.
package source

import (
	"time"
)

// Status is the terminal state of one adapter fetch.
type Status int

const (
	Ok Status = iota
	TimedOut
	Unavailable
	Error
)

func (s Status) String() string {
	switch s {
	case Ok:
		return "ok"
	case TimedOut:
		return "timed_out"
	case Unavailable:
		return "unavailable"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Result is what an Adapter hands back. Value is the zero value unless
// Status is Ok; Found distinguishes a real answer from an authoritative
// "no such caller". Err is diagnostic only.
type Result[T any] struct {
	Value   T
	Found   bool
	Status  Status
	Latency time.Duration
	Cached  bool
	Err     error
}

// OK reports whether the source answered, found or not.
func (r Result[T]) OK() bool {
	return r.Status == Ok
}

// Params carries per-call arguments beyond the caller key.
type Params struct {
	// Scope names the calendar or location an availability lookup targets.
	Scope string

	// From and To bound an availability window, [From, To).
	From time.Time
	To   time.Time
}
