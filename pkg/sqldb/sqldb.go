// Package sqldb opens the SQL databases backing the durable cache tier and
// the interaction store. PostgreSQL is reached through pgx's database/sql
// driver and SQLite through mattn/go-sqlite3; statements are written with
// "?" placeholders and rebound per dialect.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register the pgx PostgreSQL driver as "pgx"
	_ "github.com/mattn/go-sqlite3"     // register the SQLite driver as "sqlite3"
)

// Dialect identifies the SQL flavor.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

// DB is a database handle that knows its dialect.
type DB struct {
	*sql.DB
	Dialect Dialect
}

// Open connects to the database for dialect at dsn and verifies it is
// reachable. For SQLite the dsn is a file path or ":memory:".
func Open(ctx context.Context, dialect Dialect, dsn string) (*DB, error) {
	switch dialect {
	case Postgres:
		return openPostgres(ctx, dsn)
	case SQLite:
		return openSQLite(dsn)
	default:
		return nil, fmt.Errorf("unsupported durable driver: %q (available: postgres, sqlite)", dialect)
	}
}

// Wrap adopts an existing handle, e.g. one from go-sqlmock.
func Wrap(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, Dialect: dialect}
}

func openPostgres(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify the connection is reachable
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return Wrap(db, Postgres), nil
}

func openSQLite(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Each connection to ":memory:" is its own database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// SQLite-specific pragmas
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return Wrap(db, SQLite), nil
}

// Rebind rewrites "?" placeholders into the dialect's positional form.
func (d *DB) Rebind(query string) string {
	if d.Dialect != Postgres {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// BlobType returns the column type used for opaque payloads.
func (d *DB) BlobType() string {
	if d.Dialect == Postgres {
		return "BYTEA"
	}
	return "BLOB"
}

// Migrate executes each statement in order.
func (d *DB) Migrate(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if _, err := d.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}
