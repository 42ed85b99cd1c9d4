// Package storeutil holds the small pieces shared by every sqlite-backed
// store (Snapshot/Idempotency/Checkpoint/RunLog/DeadLetter/DelayTasks):
// opening the pure-Go driver and applying the pragmas every store wants.
package storeutil

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// Open opens a sqlite database at path (":memory:" for an ephemeral store
// suitable for tests) and applies WAL + busy-timeout pragmas so concurrent
// stores sharing one process don't trip SQLITE_BUSY under the bounded
// worker pool.
func Open(path string) (*sql.DB, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storeutil: open %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storeutil: set journal_mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("storeutil: set busy_timeout: %w", err)
	}
	return db, nil
}
