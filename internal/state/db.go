package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Journal entry kinds.
const (
	KindGate     = "gate"
	KindPhase    = "phase"
	KindVerify   = "verify"
	KindBaseline = "baseline"
	KindRun      = "run"
)

// Entry is one journaled decision.
type Entry struct {
	ID        int64
	Kind      string
	Iteration string
	// Subject names what was decided on, e.g. gate_4 or phase_2->phase_3.
	Subject string
	// Verdict is PASS, FAIL, SKIP, BLOCKED or FORCED.
	Verdict string
	Detail  string
	At      time.Time
}

// Journal is an append-only SQLite history of gate verdicts and phase
// transitions. The JSON/YAML documents remain the source of truth; the
// journal only answers "what happened when".
type Journal struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// OpenJournal opens (creating if needed) the journal at path and applies
// pending migrations. WAL mode is enabled for concurrent reads.
func OpenJournal(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	j := &Journal{conn: conn, path: path}
	if err := j.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return j, nil
}

// OpenProjectJournal opens the journal under the project's state root.
func OpenProjectJournal(projectDir string) (*Journal, error) {
	return OpenJournal(Layout{ProjectDir: projectDir}.HistoryPath())
}

// Close closes the database connection.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.conn.Close()
}

// Path returns the path to the database file.
func (j *Journal) Path() string {
	return j.path
}

// Migrate applies all pending schema migrations.
func (j *Journal) Migrate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := j.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Entries},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := j.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Entries = `
CREATE TABLE IF NOT EXISTS entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	iteration TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL,
	verdict TEXT NOT NULL,
	detail TEXT NOT NULL DEFAULT '',
	recorded_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entries_kind ON entries(kind);
CREATE INDEX IF NOT EXISTS idx_entries_iteration ON entries(iteration);
`

// Record appends an entry. A zero At is stamped with the current time.
func (j *Journal) Record(e Entry) error {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, err := j.conn.Exec(`
		INSERT INTO entries (kind, iteration, subject, verdict, detail, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Kind, e.Iteration, e.Subject, e.Verdict, e.Detail, formatTime(e.At))
	if err != nil {
		return fmt.Errorf("record %s %s: %w", e.Kind, e.Subject, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. An empty iteration
// matches every iteration.
func (j *Journal) Recent(iteration string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.conn.Query(`
		SELECT id, kind, iteration, subject, verdict, detail, recorded_at
		FROM entries
		WHERE ? = '' OR iteration = ?
		ORDER BY id DESC
		LIMIT ?
	`, iteration, iteration, limit)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var at string
		if err := rows.Scan(&e.ID, &e.Kind, &e.Iteration, &e.Subject, &e.Verdict, &e.Detail, &at); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		if e.At, err = parseTime(at); err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", at, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
