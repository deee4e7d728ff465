package store

import (
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver
)

// OpenDB opens a SQLite database for sharing between stores.
//
// ":memory:" databases are per-connection in SQLite, so the pool is
// pinned to a single connection there or every pooled connection would
// see its own empty database.
func OpenDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if strings.Contains(dbPath, ":memory:") {
		db.SetMaxOpenConns(1)
	}

	return db, nil
}
