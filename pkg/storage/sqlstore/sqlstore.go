// Package sqlstore implements storage.Driver over database/sql for both
// PostgreSQL and SQLite. The postgres and sqlite packages open the database
// and hand it here.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/papercomputeco/rolodex/pkg/caller"
	"github.com/papercomputeco/rolodex/pkg/sqldb"
	"github.com/papercomputeco/rolodex/pkg/storage"
)

// Driver implements storage.Driver on interactions, contacts and
// daily_metrics tables. Timestamps are unix nanoseconds.
type Driver struct {
	db *sqldb.DB
}

var _ storage.Driver = (*Driver)(nil)

// New wraps db. Call Migrate before first use.
func New(db *sqldb.DB) *Driver {
	return &Driver{db: db}
}

// DB returns the underlying handle, for sharing with the durable cache tier.
func (d *Driver) DB() *sqldb.DB {
	return d.db
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS interactions (
	id           TEXT PRIMARY KEY,
	caller_key   TEXT NOT NULL,
	reference_id TEXT NOT NULL DEFAULT '',
	scope        TEXT NOT NULL DEFAULT '',
	outcome      TEXT NOT NULL,
	started_at   BIGINT NOT NULL,
	ended_at     BIGINT NOT NULL,
	metadata     TEXT NOT NULL DEFAULT '{}'
)`,
	`CREATE INDEX IF NOT EXISTS idx_interactions_caller_key ON interactions (caller_key)`,
	`CREATE TABLE IF NOT EXISTS contacts (
	caller_key    TEXT PRIMARY KEY,
	reference_id  TEXT NOT NULL DEFAULT '',
	total_calls   BIGINT NOT NULL,
	first_seen_at BIGINT NOT NULL,
	last_call_at  BIGINT NOT NULL,
	first_interaction_id TEXT NOT NULL DEFAULT '',
	last_interaction_id  TEXT NOT NULL DEFAULT ''
)`,
	`CREATE TABLE IF NOT EXISTS daily_metrics (
	day                 TEXT PRIMARY KEY,
	calls_total         BIGINT NOT NULL DEFAULT 0,
	new_callers         BIGINT NOT NULL DEFAULT 0,
	appointments_booked BIGINT NOT NULL DEFAULT 0,
	transfers           BIGINT NOT NULL DEFAULT 0
)`,
}

// Migrate creates the tables if they do not exist.
func (d *Driver) Migrate(ctx context.Context) error {
	return d.db.Migrate(ctx, schema...)
}

// AppendInteraction inserts in; an existing id is left untouched.
func (d *Driver) AppendInteraction(ctx context.Context, in storage.Interaction) (bool, error) {
	if in.ID == "" {
		return false, errors.New("cannot store interaction without id")
	}

	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return false, fmt.Errorf("encoding interaction metadata: %w", err)
	}

	res, err := d.db.ExecContext(ctx, d.db.Rebind(`INSERT INTO interactions
	(id, caller_key, reference_id, scope, outcome, started_at, ended_at, metadata)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO NOTHING`),
		in.ID, string(in.Key), in.ReferenceID, in.Scope, string(in.Outcome),
		in.StartedAt.UnixNano(), in.EndedAt.UnixNano(), string(metadata),
	)
	if err != nil {
		return false, fmt.Errorf("inserting interaction: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("inserting interaction: %w", err)
	}
	return n > 0, nil
}

// GetInteraction retrieves an interaction by id.
func (d *Driver) GetInteraction(ctx context.Context, id string) (storage.Interaction, error) {
	var (
		in        storage.Interaction
		key       string
		outcome   string
		startedAt int64
		endedAt   int64
		metadata  string
	)

	row := d.db.QueryRowContext(ctx, d.db.Rebind(`SELECT id, caller_key, reference_id, scope, outcome, started_at, ended_at, metadata
FROM interactions WHERE id = ?`), id)
	if err := row.Scan(&in.ID, &key, &in.ReferenceID, &in.Scope, &outcome, &startedAt, &endedAt, &metadata); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Interaction{}, storage.NotFoundError{ID: id}
		}
		return storage.Interaction{}, fmt.Errorf("querying interaction: %w", err)
	}

	if err := json.Unmarshal([]byte(metadata), &in.Metadata); err != nil {
		return storage.Interaction{}, fmt.Errorf("decoding interaction metadata: %w", err)
	}

	in.Key = caller.Key(key)
	in.Outcome = storage.Outcome(outcome)
	in.StartedAt = time.Unix(0, startedAt).UTC()
	in.EndedAt = time.Unix(0, endedAt).UTC()
	return in, nil
}

// UpsertContact inserts the caller's row or increments total_calls in the
// same statement, so concurrent calls never lose an update. An update
// repeating the row's last interaction id leaves total_calls alone.
func (d *Driver) UpsertContact(ctx context.Context, u storage.ContactUpdate) (storage.Contact, error) {
	at := u.CalledAt.UnixNano()

	var (
		c           storage.Contact
		firstSeenAt int64
		lastCallAt  int64
		firstID     string
	)

	row := d.db.QueryRowContext(ctx, d.db.Rebind(`INSERT INTO contacts
	(caller_key, reference_id, total_calls, first_seen_at, last_call_at, first_interaction_id, last_interaction_id)
VALUES (?, ?, 1, ?, ?, ?, ?)
ON CONFLICT (caller_key) DO UPDATE SET
	total_calls = CASE
		WHEN excluded.last_interaction_id <> '' AND excluded.last_interaction_id = contacts.last_interaction_id
		THEN contacts.total_calls
		ELSE contacts.total_calls + 1
	END,
	last_call_at = excluded.last_call_at,
	last_interaction_id = excluded.last_interaction_id,
	reference_id = CASE WHEN excluded.reference_id <> '' THEN excluded.reference_id ELSE contacts.reference_id END
RETURNING reference_id, total_calls, first_seen_at, last_call_at, first_interaction_id, last_interaction_id`),
		string(u.Key), u.ReferenceID, at, at, u.InteractionID, u.InteractionID,
	)
	if err := row.Scan(&c.ReferenceID, &c.TotalCalls, &firstSeenAt, &lastCallAt, &firstID, &c.LastInteractionID); err != nil {
		return storage.Contact{}, fmt.Errorf("upserting contact: %w", err)
	}

	c.Key = u.Key
	c.FirstSeenAt = time.Unix(0, firstSeenAt).UTC()
	c.LastCallAt = time.Unix(0, lastCallAt).UTC()
	c.Created = created(u.InteractionID, firstID, c.TotalCalls)
	return c, nil
}

// created reports whether the update with id created the row. Without an id
// only the first call can tell.
func created(id, firstID string, totalCalls int64) bool {
	if id == "" {
		return totalCalls == 1
	}
	return id == firstID
}

// IncrementCounters adds delta to day's row in one statement.
func (d *Driver) IncrementCounters(ctx context.Context, day string, delta storage.Counters) error {
	_, err := d.db.ExecContext(ctx, d.db.Rebind(`INSERT INTO daily_metrics
	(day, calls_total, new_callers, appointments_booked, transfers)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (day) DO UPDATE SET
	calls_total = daily_metrics.calls_total + excluded.calls_total,
	new_callers = daily_metrics.new_callers + excluded.new_callers,
	appointments_booked = daily_metrics.appointments_booked + excluded.appointments_booked,
	transfers = daily_metrics.transfers + excluded.transfers`),
		day, delta.CallsTotal, delta.NewCallers, delta.AppointmentsBooked, delta.Transfers,
	)
	if err != nil {
		return fmt.Errorf("incrementing daily metrics: %w", err)
	}
	return nil
}

// DailyMetrics returns day's counters and conversion rate.
func (d *Driver) DailyMetrics(ctx context.Context, day string) (storage.DailyMetrics, error) {
	var c storage.Counters

	row := d.db.QueryRowContext(ctx, d.db.Rebind(`SELECT calls_total, new_callers, appointments_booked, transfers
FROM daily_metrics WHERE day = ?`), day)
	err := row.Scan(&c.CallsTotal, &c.NewCallers, &c.AppointmentsBooked, &c.Transfers)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return storage.DailyMetrics{}, fmt.Errorf("querying daily metrics: %w", err)
	}

	return storage.NewDailyMetrics(day, c), nil
}

// Close closes the database.
func (d *Driver) Close() error {
	return d.db.Close()
}
