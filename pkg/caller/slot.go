package caller

import "time"

// labelLayout renders instants as "Monday, January 15 at 02:00 PM".
const labelLayout = "Monday, January 02 at 03:04 PM"

// Slot is a bookable instant and its human-readable label.
type Slot struct {
	Instant time.Time `json:"instant"`
	Label   string    `json:"label"`
}

// NewSlot builds a Slot for instant, rendering its label in loc.
// The instant itself is stored in UTC.
func NewSlot(instant time.Time, loc *time.Location) Slot {
	return Slot{
		Instant: instant.UTC(),
		Label:   RenderLabel(instant, loc),
	}
}

// RenderLabel is a pure function of the instant and the timezone.
// A nil location renders in UTC.
func RenderLabel(instant time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return instant.In(loc).Format(labelLayout)
}

// Booking is an existing appointment on the caller's directory record.
type Booking struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	Instant time.Time `json:"instant"`
	Label   string    `json:"label"`
	Status  string    `json:"status"`
}
