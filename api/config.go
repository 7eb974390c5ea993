// Package api provides the HTTP API server for resolving caller context and
// accepting finished interactions.
package api

import "time"

// Config is the API server configuration.
type Config struct {
	// ListenAddr is the address to listen on (e.g., ":8080")
	ListenAddr string

	// Location is the timezone used to resolve "today" for daily metrics.
	// Defaults to UTC.
	Location *time.Location

	// Now overrides the clock, for tests.
	Now func() time.Time
}
