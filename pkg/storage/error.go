package storage

// NotFoundError is returned when an interaction doesn't exist in the store.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return "interaction not found"
	}

	return "interaction not found: " + e.ID
}
