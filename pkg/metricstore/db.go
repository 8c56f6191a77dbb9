// Package metricstore provides the shared embedded-SQL storage layer used
// by the Heartbeat Aggregator and the Network Monitor. Both components
// open their own database file against this same driver, matching
// spec.md's treatment of the Metric Store as a standalone component
// family built on one storage technology.
package metricstore

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// Open opens (creating the file if necessary) a WAL-mode sqlite database
// at path. Callers apply their own goose migrations against the returned
// handle immediately after open.
func Open(path string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database %s: %w", path, err)
	}

	// sqlite3 + WAL: one writer at a time; serializing through a single
	// connection avoids SQLITE_BUSY storms under concurrent goroutines.
	db.SetMaxOpenConns(1)

	return db, nil
}
