package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// schemaSteps upgrade the run history one version at a time: step i moves
// the schema from version i to i+1. Append new steps; never edit old ones.
var schemaSteps = []func(*sql.Tx) error{
	createRunTables,
	addRunListIndexes,
}

// migrate applies every pending schema step. Each step runs in its own
// transaction together with the version bump.
func (s *SQLiteStore) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("creating meta table: %w", err)
	}
	if _, err := s.db.Exec(
		"INSERT OR IGNORE INTO meta (key, value) VALUES ('created_at', ?)",
		time.Now().UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("recording creation time: %w", err)
	}

	current, err := s.schemaVersion()
	if err != nil {
		return err
	}
	if current > len(schemaSteps) {
		return fmt.Errorf("run history schema version %d is newer than this build supports (%d)", current, len(schemaSteps))
	}
	for v := current; v < len(schemaSteps); v++ {
		if err := s.applySchemaStep(v); err != nil {
			return fmt.Errorf("migrating run history to version %d: %w", v+1, err)
		}
	}
	return nil
}

func (s *SQLiteStore) applySchemaStep(v int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := schemaSteps[v](tx); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)", strconv.Itoa(v+1),
	); err != nil {
		return err
	}
	return tx.Commit()
}

// schemaVersion reads meta.schema_version; a database without one is at 0.
func (s *SQLiteStore) schemaVersion() (int, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = 'schema_version'").Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid schema version %q: %w", value, err)
	}
	return v, nil
}

func createRunTables(tx *sql.Tx) error {
	return execAll(tx,
		`CREATE TABLE IF NOT EXISTS runs (
			id                 TEXT PRIMARY KEY,
			input              TEXT NOT NULL DEFAULT '',
			state              TEXT NOT NULL,
			success            INTEGER NOT NULL DEFAULT 0,
			notes_column       TEXT NOT NULL,
			group_column       TEXT NOT NULL DEFAULT '',
			chunk_size         INTEGER NOT NULL DEFAULT 0,
			workers            INTEGER NOT NULL DEFAULT 0,
			total_records      INTEGER NOT NULL DEFAULT 0,
			successful_records INTEGER NOT NULL DEFAULT 0,
			success_rate       REAL NOT NULL DEFAULT 0,
			chunks             INTEGER NOT NULL DEFAULT 0,
			errors             TEXT NOT NULL DEFAULT '[]',
			started_at         TEXT NOT NULL,
			finished_at        TEXT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS run_fields (
			run_id     TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position   INTEGER NOT NULL,
			field      TEXT NOT NULL,
			count      INTEGER NOT NULL,
			percentage REAL NOT NULL,
			samples    TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY (run_id, field)
		)`,

		`CREATE TABLE IF NOT EXISTS run_groups (
			run_id           TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			position         INTEGER NOT NULL,
			group_key        TEXT NOT NULL,
			display_name     TEXT NOT NULL DEFAULT '',
			records          INTEGER NOT NULL,
			mandatory_filled INTEGER NOT NULL,
			mandatory_total  INTEGER NOT NULL,
			completeness     REAL NOT NULL,
			PRIMARY KEY (run_id, group_key)
		)`,

		`CREATE TABLE IF NOT EXISTS run_rows (
			run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			row_index INTEGER NOT NULL,
			group_key TEXT NOT NULL DEFAULT '',
			cleaned   TEXT,
			fields    TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY (run_id, row_index)
		)`,
	)
}

// addRunListIndexes backs `runs` listing and group filtering of stored rows.
func addRunListIndexes(tx *sql.Tx) error {
	return execAll(tx,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_run_rows_group ON run_rows(run_id, group_key)`,
	)
}

func execAll(tx *sql.Tx, statements ...string) error {
	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("%w\nSQL: %.80s", err, stmt)
		}
	}
	return nil
}
