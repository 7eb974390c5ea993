// Package sqlcache provides the durable cache.Tier backed by a SQL
// cache_entries table on PostgreSQL or SQLite.
package sqlcache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/papercomputeco/rolodex/pkg/cache"
	"github.com/papercomputeco/rolodex/pkg/sqldb"
)

// Tier implements cache.Tier on a cache_entries table keyed by
// (namespace, key). Timestamps are stored as unix nanoseconds.
type Tier struct {
	db  *sqldb.DB
	now func() time.Time
}

// NewTier wraps db. Call Migrate before first use.
func NewTier(db *sqldb.DB) *Tier {
	return &Tier{db: db, now: time.Now}
}

// WithClock overrides the clock used by Sweep.
func (t *Tier) WithClock(now func() time.Time) *Tier {
	t.now = now
	return t
}

func (t *Tier) Name() string {
	return "sql"
}

// Migrate creates the cache_entries table and its expiry index.
func (t *Tier) Migrate(ctx context.Context) error {
	return t.db.Migrate(ctx,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS cache_entries (
	namespace  TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      %s NOT NULL,
	stored_at  BIGINT NOT NULL,
	expires_at BIGINT NOT NULL,
	PRIMARY KEY (namespace, key)
)`, t.db.BlobType()),
		`CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries (expires_at)`,
	)
}

func (t *Tier) Get(ctx context.Context, ns cache.Namespace, key string) (cache.Entry, error) {
	var (
		value     []byte
		storedAt  int64
		expiresAt int64
	)

	row := t.db.QueryRowContext(ctx,
		t.db.Rebind(`SELECT value, stored_at, expires_at FROM cache_entries WHERE namespace = ? AND key = ?`),
		string(ns), key,
	)
	if err := row.Scan(&value, &storedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return cache.Entry{}, cache.ErrMiss
		}
		return cache.Entry{}, fmt.Errorf("sql tier get: %w", err)
	}

	return cache.Entry{
		Value:     value,
		StoredAt:  time.Unix(0, storedAt).UTC(),
		ExpiresAt: time.Unix(0, expiresAt).UTC(),
	}, nil
}

func (t *Tier) Set(ctx context.Context, ns cache.Namespace, key string, entry cache.Entry) error {
	_, err := t.db.ExecContext(ctx,
		t.db.Rebind(`INSERT INTO cache_entries (namespace, key, value, stored_at, expires_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (namespace, key) DO UPDATE SET
	value = excluded.value,
	stored_at = excluded.stored_at,
	expires_at = excluded.expires_at`),
		string(ns), key, entry.Value, entry.StoredAt.UnixNano(), entry.ExpiresAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sql tier set: %w", err)
	}
	return nil
}

func (t *Tier) Delete(ctx context.Context, ns cache.Namespace, key string) error {
	_, err := t.db.ExecContext(ctx,
		t.db.Rebind(`DELETE FROM cache_entries WHERE namespace = ? AND key = ?`),
		string(ns), key,
	)
	if err != nil {
		return fmt.Errorf("sql tier delete: %w", err)
	}
	return nil
}

func (t *Tier) DeletePrefix(ctx context.Context, ns cache.Namespace, prefix string) (int, error) {
	res, err := t.db.ExecContext(ctx,
		t.db.Rebind(`DELETE FROM cache_entries WHERE namespace = ? AND key LIKE ? ESCAPE '\'`),
		string(ns), escapeLike(prefix)+"%",
	)
	if err != nil {
		return 0, fmt.Errorf("sql tier delete prefix: %w", err)
	}
	return affected(res), nil
}

// Sweep deletes rows whose expiry has passed and returns how many were
// removed. Reads never depend on it.
func (t *Tier) Sweep(ctx context.Context) (int, error) {
	res, err := t.db.ExecContext(ctx,
		t.db.Rebind(`DELETE FROM cache_entries WHERE expires_at < ?`),
		t.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("sql tier sweep: %w", err)
	}
	return affected(res), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func affected(res sql.Result) int {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return int(n)
}
