// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"

	"github.com/papercomputeco/rolodex/pkg/sqldb"
	"github.com/papercomputeco/rolodex/pkg/storage/sqlstore"
)

// SQLiteDriver implements storage.Driver using SQLite.
type SQLiteDriver struct {
	*sqlstore.Driver
}

// NewSQLiteDriver creates a new SQLite-backed store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDriver(dbPath string) (*SQLiteDriver, error) {
	ctx := context.Background()

	db, err := sqldb.Open(ctx, sqldb.SQLite, dbPath)
	if err != nil {
		return nil, err
	}

	d := sqlstore.New(db)
	if err := d.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteDriver{Driver: d}, nil
}
