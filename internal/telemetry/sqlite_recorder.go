package telemetry

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists count_me events into a modernc.org/sqlite
// database, upserting per (run_id, category, event) counters. Useful for
// comparing GC behavior across multiple demo runs without losing history
// between process restarts, unlike LogRecorder's in-memory totals.
type SQLiteRecorder struct {
	mu      sync.Mutex
	db      *sql.DB
	runID   string
	verbose bool
}

// NewSQLiteRecorder opens (creating if needed) a sqlite database at path
// and prepares its events table. runID tags every row so multiple
// concurrent demo sessions sharing one database file don't clobber each
// other's counters (cmd/nkftlsim passes a fresh internal/runid.New() ID).
func NewSQLiteRecorder(path, runID string, verbose bool) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open sqlite recorder: %w", err)
	}
	const ddl = `CREATE TABLE IF NOT EXISTS events (
		run_id   TEXT NOT NULL,
		category TEXT NOT NULL,
		event    TEXT NOT NULL,
		n        INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, category, event)
	)`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("telemetry: create events table: %w", err)
	}
	return &SQLiteRecorder{db: db, runID: runID, verbose: verbose}, nil
}

// CountMe upserts one occurrence of category/event for this run.
func (r *SQLiteRecorder) CountMe(category, event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	const q = `INSERT INTO events (run_id, category, event, n) VALUES (?, ?, ?, 1)
		ON CONFLICT (run_id, category, event) DO UPDATE SET n = n + 1`
	if _, err := r.db.Exec(q, r.runID, category, event); err != nil {
		// Telemetry must never take down the FTL; best effort only.
		_ = err
	}
}

// Verbose reports the configured verbosity filter.
func (r *SQLiteRecorder) Verbose() bool { return r.verbose }

// Count returns the persisted total for category/event in this run.
func (r *SQLiteRecorder) Count(category, event string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int
	const q = `SELECT n FROM events WHERE run_id = ? AND category = ? AND event = ?`
	err := r.db.QueryRow(q, r.runID, category, event).Scan(&n)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return n, err
}

// Close closes the underlying database handle.
func (r *SQLiteRecorder) Close() error { return r.db.Close() }
