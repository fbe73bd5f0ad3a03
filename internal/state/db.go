// Package state persists run history in a project-local SQLite database at
// .verifix/state.db. The history powers the status command and gives repair
// prompts a durable record across process restarts.
package state

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/verifix-dev/verifix/pkg/models"
)

// DB wraps the project-local history database.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
}

// ProjectDBPath returns the history database path for a project root.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".verifix", "state.db")
}

// Open opens the database at path, creating parent directories as needed.
// WAL mode is enabled for concurrent reads.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	return &DB{conn: conn, path: path}, nil
}

// OpenProject opens the history database for a project root.
func OpenProject(projectRoot string) (*DB, error) {
	return Open(ProjectDBPath(projectRoot))
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, `
			CREATE TABLE runs (
				id TEXT PRIMARY KEY,
				artifact TEXT NOT NULL,
				state TEXT NOT NULL,
				verified_count INTEGER NOT NULL,
				error_count INTEGER NOT NULL,
				compilation_error INTEGER NOT NULL,
				restored INTEGER NOT NULL,
				rounds INTEGER NOT NULL,
				trial_count INTEGER NOT NULL,
				elapsed_ms INTEGER NOT NULL,
				started_at DATETIME NOT NULL,
				finished_at DATETIME NOT NULL
			)
		`},
		{2, `
			CREATE TABLE trials (
				run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
				trial_id INTEGER NOT NULL,
				verified_count INTEGER NOT NULL,
				error_count INTEGER NOT NULL,
				compilation_error INTEGER NOT NULL,
				path TEXT NOT NULL DEFAULT '',
				created_at DATETIME NOT NULL,
				PRIMARY KEY (run_id, trial_id)
			)
		`},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		tx, err := db.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.version, err)
		}
	}
	return nil
}

// RunRecord is one row of run history.
type RunRecord struct {
	ID         string
	Artifact   string
	State      string
	Score      models.Score
	Restored   bool
	Rounds     int
	TrialCount int
	Elapsed    time.Duration
	StartedAt  time.Time
	FinishedAt time.Time
}

// TrialRecord is one recorded trial of a run.
type TrialRecord struct {
	RunID     string
	TrialID   int
	Score     models.Score
	Path      string
	CreatedAt time.Time
}

// RecordRun stores a finished run and its trials in one transaction.
func (db *DB) RecordRun(run RunRecord, trials []*models.Trial) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO runs (id, artifact, state, verified_count, error_count,
			compilation_error, restored, rounds, trial_count, elapsed_ms,
			started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Artifact, run.State,
		run.Score.VerifiedCount, run.Score.ErrorCount, boolToInt(run.Score.CompilationError),
		boolToInt(run.Restored), run.Rounds, run.TrialCount,
		run.Elapsed.Milliseconds(), formatTime(run.StartedAt), formatTime(run.FinishedAt))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}

	for _, trial := range trials {
		_, err = tx.Exec(`
			INSERT INTO trials (run_id, trial_id, verified_count, error_count,
				compilation_error, path, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, trial.ID,
			trial.Score.VerifiedCount, trial.Score.ErrorCount, boolToInt(trial.Score.CompilationError),
			trial.Path, formatTime(trial.CreatedAt))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert trial %d: %w", trial.ID, err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns the most recent runs, newest first.
func (db *DB) RecentRuns(limit int) ([]RunRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if limit <= 0 {
		limit = 10
	}
	rows, err := db.conn.Query(`
		SELECT id, artifact, state, verified_count, error_count,
			compilation_error, restored, rounds, trial_count, elapsed_ms,
			started_at, finished_at
		FROM runs ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var compile, restored int
		var elapsedMS int64
		var started, finished string
		if err := rows.Scan(&r.ID, &r.Artifact, &r.State,
			&r.Score.VerifiedCount, &r.Score.ErrorCount, &compile,
			&restored, &r.Rounds, &r.TrialCount, &elapsedMS,
			&started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Score.CompilationError = compile != 0
		r.Restored = restored != 0
		r.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, fmt.Errorf("parse started_at: %w", err)
		}
		if r.FinishedAt, err = parseTime(finished); err != nil {
			return nil, fmt.Errorf("parse finished_at: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RunTrials returns the trials of one run in acceptance order.
func (db *DB) RunTrials(runID string) ([]TrialRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query(`
		SELECT run_id, trial_id, verified_count, error_count,
			compilation_error, path, created_at
		FROM trials WHERE run_id = ? ORDER BY trial_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query trials: %w", err)
	}
	defer rows.Close()

	var trials []TrialRecord
	for rows.Next() {
		var t TrialRecord
		var compile int
		var created string
		if err := rows.Scan(&t.RunID, &t.TrialID,
			&t.Score.VerifiedCount, &t.Score.ErrorCount, &compile,
			&t.Path, &created); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}
		t.Score.CompilationError = compile != 0
		if t.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		trials = append(trials, t)
	}
	return trials, rows.Err()
}

// formatTime renders a time for storage; parseTime reverses it.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
