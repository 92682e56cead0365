// Package store provides the SQLite run history for provnotes.
//
// Every completed or failed run can be saved with:
// - Run summary (state, columns, totals, errors, timing)
// - Per-field extraction statistics
// - Per-group mandatory-field completeness
// - Optionally, the cleaned text and extracted fields of every record
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hurttlocker/provnotes/internal/pipeline"
)

// DefaultDBPath is the default database location.
const DefaultDBPath = "~/.provnotes/runs.db"

// DefaultListLimit caps ListRuns and RunRows when no limit is given.
const DefaultListLimit = 50

// ErrNotFound is returned when a run id matches nothing.
var ErrNotFound = errors.New("run not found")

// RunRecord is one saved run. ListRuns leaves Fields and Groups empty;
// Rows are written by SaveRun and read back through RunRows.
type RunRecord struct {
	ID                string    `json:"id"`
	Input             string    `json:"input"`
	State             string    `json:"state"`
	Success           bool      `json:"success"`
	NotesColumn       string    `json:"notes_column"`
	GroupColumn       string    `json:"group_column,omitempty"`
	ChunkSize         int       `json:"chunk_size"`
	Workers           int       `json:"workers"`
	TotalRecords      int       `json:"total_records"`
	SuccessfulRecords int       `json:"successful_records"`
	SuccessRate       float64   `json:"success_rate"`
	Chunks            int       `json:"chunks"`
	Errors            []string  `json:"errors,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`

	Fields []pipeline.FieldStat `json:"fields,omitempty"`
	Groups []pipeline.GroupStat `json:"groups,omitempty"`
	Rows   []RowRecord          `json:"rows,omitempty"`
}

// Duration is the wall time of the run.
func (r *RunRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// RowRecord is the stored outcome of one record.
type RowRecord struct {
	Index   int            `json:"index"`
	Group   string         `json:"group,omitempty"`
	Cleaned *string        `json:"cleaned"`
	Fields  map[string]any `json:"fields"`
}

// StoreConfig holds configuration for NewStore.
type StoreConfig struct {
	DBPath string
}

// Store defines the run-history interface.
type Store interface {
	SaveRun(ctx context.Context, run *RunRecord) error
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	RunRows(ctx context.Context, id string, limit, offset int) ([]RowRecord, error)
	DeleteRun(ctx context.Context, id string) error

	Vacuum(ctx context.Context) error
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewStore creates a new SQLite-backed Store.
// Pass ":memory:" for in-memory databases (testing).
func NewStore(cfg StoreConfig) (Store, error) {
	if cfg.DBPath == "" {
		cfg.DBPath = ExpandPath(DefaultDBPath)
	}

	// Create parent directory for non-memory databases
	if cfg.DBPath != ":memory:" {
		dir := filepath.Dir(cfg.DBPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if cfg.DBPath == ":memory:" {
		// Each connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: cfg.DBPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Vacuum runs VACUUM on the database. Manual only, never automatic.
func (s *SQLiteStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// ExpandPath expands ~ to the home directory.
func ExpandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
