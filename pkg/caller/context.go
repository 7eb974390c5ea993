package caller

import "time"

// Knownness records whether the caller was recognized by any source.
type Knownness string

const (
	// Known means a source holds facts or a directory record for the caller.
	Known Knownness = "known"

	// Unknown means every identity source answered and none knew the caller.
	Unknown Knownness = "unknown"

	// Indeterminate means an identity source could not be asked.
	Indeterminate Knownness = "indeterminate"
)

// Origin is the provenance of a single context field.
type Origin string

const (
	OriginCache   Origin = "cache"
	OriginSource  Origin = "source"
	OriginDefault Origin = "default"
)

// Field couples a value with where it came from, so the two cannot drift.
type Field[T any] struct {
	Value  T      `json:"value"`
	Origin Origin `json:"origin"`
}

// FromCache wraps a value served from a cache tier.
func FromCache[T any](v T) Field[T] {
	return Field[T]{Value: v, Origin: OriginCache}
}

// FromSource wraps a value fetched live from its source.
func FromSource[T any](v T) Field[T] {
	return Field[T]{Value: v, Origin: OriginSource}
}

// Defaulted wraps the empty form used when a source could not answer.
func Defaulted[T any](v T) Field[T] {
	return Field[T]{Value: v, Origin: OriginDefault}
}

// Context is everything known about a caller at resolution time. A Context is
// never mutated after construction; reconciliation builds and stores a new one.
type Context struct {
	Key         Key              `json:"key"`
	Known       Knownness        `json:"known"`
	Facts       Field[[]string]  `json:"facts"`
	ReferenceID Field[string]    `json:"reference_id"`
	Slots       Field[[]Slot]    `json:"slots"`
	Bookings    Field[[]Booking] `json:"bookings"`
	ResolvedAt  time.Time        `json:"resolved_at"`
}

// Empty returns the all-empty, indeterminate context used when nothing could
// be resolved.
func Empty(key Key, at time.Time) *Context {
	return &Context{
		Key:         key,
		Known:       Indeterminate,
		Facts:       Defaulted([]string{}),
		ReferenceID: Defaulted(""),
		Slots:       Defaulted([]Slot{}),
		Bookings:    Defaulted([]Booking{}),
		ResolvedAt:  at,
	}
}

// Provenance returns the per-field origin map.
func (c *Context) Provenance() map[string]Origin {
	return map[string]Origin{
		"facts":        c.Facts.Origin,
		"reference_id": c.ReferenceID.Origin,
		"slots":        c.Slots.Origin,
		"bookings":     c.Bookings.Origin,
	}
}

// WithOrigin returns a copy of c with every field's origin set to o.
func (c *Context) WithOrigin(o Origin) *Context {
	out := *c
	out.Facts.Origin = o
	out.ReferenceID.Origin = o
	out.Slots.Origin = o
	out.Bookings.Origin = o
	return &out
}

// Degraded reports whether any field fell back to its default.
func (c *Context) Degraded() bool {
	for _, o := range c.Provenance() {
		if o == OriginDefault {
			return true
		}
	}
	return false
}
