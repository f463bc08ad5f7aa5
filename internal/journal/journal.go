// Package journal keeps a SQLite history of what clean runs removed.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Ning0612/treeclean/internal/logger"
	"github.com/Ning0612/treeclean/internal/progress"
)

// Journal is an append-only log of clean incidents
type Journal struct {
	db *sql.DB
}

// Record is one journal row
type Record struct {
	ID        int64
	RunID     string
	Timestamp time.Time
	Action    string // DELETE, ERROR, CHMOD, CHMOD_ERROR, SKIP or DRY_RUN
	Kind      string
	Op        string
	Path      string
	Error     string
}

// Open opens (creating if needed) the journal database at dbPath
func Open(dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory %s: %w", dir, err)
		}
	}

	// _loc=auto parses DATETIME columns back into time.Time
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_loc=auto")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	defer func() {
		if err != nil {
			db.Close()
		}
	}()

	// A single connection avoids "database is locked" between writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err = db.Exec("SELECT 1"); err != nil {
		return nil, fmt.Errorf("failed to initialize journal (check permissions on %s): %w", dbPath, err)
	}
	if _, err = db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode and busy timeout: %w", err)
	}
	if _, err = db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	j := &Journal{db: db}
	if err = j.initSchema(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS removals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		action TEXT NOT NULL,
		kind TEXT NOT NULL,
		op TEXT,
		path TEXT NOT NULL,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_removals_run ON removals(run_id);
	CREATE INDEX IF NOT EXISTS idx_removals_path ON removals(path);

	CREATE TABLE IF NOT EXISTS runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		target TEXT NOT NULL,
		start_time DATETIME NOT NULL,
		end_time DATETIME NOT NULL,
		status TEXT NOT NULL,
		files_removed INTEGER DEFAULT 0,
		directories_removed INTEGER DEFAULT 0,
		failures INTEGER DEFAULT 0,
		error TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_target_time ON runs(target, start_time DESC);
	`
	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// Record appends one event for runID
func (j *Journal) Record(runID string, ev progress.Event) error {
	ts := ev.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	var errMsg string
	if ev.Err != nil {
		errMsg = ev.Err.Error()
	}

	_, err := j.db.Exec(
		`INSERT INTO removals (run_id, timestamp, action, kind, op, path, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, ts, ev.Type.String(), ev.Kind.String(), ev.Op, ev.Path, errMsg,
	)
	return err
}

// Recent returns the latest n records, newest first
func (j *Journal) Recent(n int) ([]Record, error) {
	rows, err := j.db.Query(
		`SELECT id, run_id, timestamp, action, kind, op, path, error
		FROM removals ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r      Record
			op     sql.NullString
			errMsg sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.RunID, &r.Timestamp, &r.Action, &r.Kind, &op, &r.Path, &errMsg); err != nil {
			return nil, err
		}
		r.Op = op.String
		r.Error = errMsg.String
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountByAction tallies the records of one run
func (j *Journal) CountByAction(runID string) (map[string]int, error) {
	rows, err := j.db.Query(
		`SELECT action, COUNT(*) FROM removals WHERE run_id = ? GROUP BY action`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			action string
			n      int
		)
		if err := rows.Scan(&action, &n); err != nil {
			return nil, err
		}
		counts[action] = n
	}
	return counts, rows.Err()
}

// Close closes the database connection
func (j *Journal) Close() error {
	return j.db.Close()
}

// Reporter records every event of one run.
// Write failures are logged once and never interrupt the run.
type Reporter struct {
	journal *Journal
	runID   string
	log     logger.Logger
	failed  bool
}

// NewReporter creates a progress.Reporter writing to j
func NewReporter(j *Journal, runID string, log logger.Logger) *Reporter {
	return &Reporter{journal: j, runID: runID, log: log}
}

// Report implements progress.Reporter; wrap it in a CallbackReporter for
// concurrent runs
func (r *Reporter) Report(ev progress.Event) {
	if err := r.journal.Record(r.runID, ev); err != nil && !r.failed {
		r.failed = true
		r.log.Warn("journal write failed", "error", err)
	}
}
