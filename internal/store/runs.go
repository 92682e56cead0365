package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/hurttlocker/provnotes/internal/pipeline"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// RunSettings are the run parameters worth keeping next to the result.
type RunSettings struct {
	Input     string
	ChunkSize int
	Workers   int
}

// NewRunRecord converts a pipeline result into a storable record. With
// withRows, every table row is kept as a RowRecord.
func NewRunRecord(res *pipeline.RunResult, settings RunSettings, withRows bool) *RunRecord {
	rec := &RunRecord{
		ID:                res.RunID,
		Input:             settings.Input,
		State:             string(res.State),
		Success:           res.Success,
		NotesColumn:       res.NotesColumn,
		GroupColumn:       res.GroupColumn,
		ChunkSize:         settings.ChunkSize,
		Workers:           settings.Workers,
		TotalRecords:      res.Stats.TotalRecords,
		SuccessfulRecords: res.Stats.SuccessfulRecords,
		SuccessRate:       res.Stats.SuccessRate,
		Chunks:            res.Stats.ChunksProcessed,
		Errors:            append([]string(nil), res.Errors...),
		StartedAt:         res.StartedAt,
		FinishedAt:        res.FinishedAt,
		Fields:            res.Stats.Fields,
		Groups:            res.Stats.Groups,
	}
	if withRows && res.Table != nil {
		rec.Rows = tableRows(res.Table, res.NotesColumn, res.GroupColumn)
	}
	return rec
}

func tableRows(t *pipeline.Table, notesColumn, groupColumn string) []RowRecord {
	cleanedIdx, groupIdx := -1, -1
	type extracted struct {
		idx  int
		name string
	}
	var fields []extracted
	for i, c := range t.Columns {
		switch {
		case c == notesColumn+pipeline.CleanedSuffix:
			cleanedIdx = i
		case groupColumn != "" && c == groupColumn:
			groupIdx = i
		case strings.HasPrefix(c, pipeline.ExtractedPrefix):
			fields = append(fields, extracted{i, strings.TrimPrefix(c, pipeline.ExtractedPrefix)})
		}
	}

	rows := make([]RowRecord, len(t.Rows))
	for i, row := range t.Rows {
		r := RowRecord{Index: i, Fields: make(map[string]any, len(fields))}
		if cleanedIdx >= 0 && row[cleanedIdx] != nil {
			if s, err := cast.ToStringE(row[cleanedIdx]); err == nil {
				r.Cleaned = &s
			}
		}
		if groupIdx >= 0 {
			r.Group = strings.TrimSpace(cast.ToString(row[groupIdx]))
		}
		for _, f := range fields {
			r.Fields[f.name] = row[f.idx]
		}
		rows[i] = r
	}
	return rows
}

// SaveRun stores the run, its statistics and any rows in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *RunRecord) error {
	if run.ID == "" {
		return fmt.Errorf("run id is required")
	}
	errorsJSON, err := json.Marshal(nonNil(run.Errors))
	if err != nil {
		return fmt.Errorf("encoding errors: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, input, state, success, notes_column, group_column,
			chunk_size, workers, total_records, successful_records, success_rate,
			chunks, errors, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Input, run.State, run.Success, run.NotesColumn, run.GroupColumn,
		run.ChunkSize, run.Workers, run.TotalRecords, run.SuccessfulRecords, run.SuccessRate,
		run.Chunks, string(errorsJSON), formatTime(run.StartedAt), formatTime(run.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting run: %w", err)
	}

	for i, f := range run.Fields {
		samples, err := json.Marshal(nonNil(f.Samples))
		if err != nil {
			return fmt.Errorf("encoding samples for %s: %w", f.Field, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_fields (run_id, position, field, count, percentage, samples)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, i, f.Field, f.Count, f.Percentage, string(samples),
		); err != nil {
			return fmt.Errorf("inserting field stat %s: %w", f.Field, err)
		}
	}

	for i, g := range run.Groups {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_groups (run_id, position, group_key, display_name, records,
				mandatory_filled, mandatory_total, completeness)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, g.Group, g.DisplayName, g.Records, g.MandatoryFilled, g.MandatoryTotal, g.Completeness,
		); err != nil {
			return fmt.Errorf("inserting group stat %s: %w", g.Group, err)
		}
	}

	if len(run.Rows) > 0 {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO run_rows (run_id, row_index, group_key, cleaned, fields) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing row insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range run.Rows {
			fields, err := json.Marshal(r.Fields)
			if err != nil {
				return fmt.Errorf("encoding row %d: %w", r.Index, err)
			}
			var cleaned sql.NullString
			if r.Cleaned != nil {
				cleaned = sql.NullString{String: *r.Cleaned, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, run.ID, r.Index, r.Group, cleaned, string(fields)); err != nil {
				return fmt.Errorf("inserting row %d: %w", r.Index, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing run: %w", err)
	}
	return nil
}

const runColumns = `id, input, state, success, notes_column, group_column, chunk_size, workers,
	total_records, successful_records, success_rate, chunks, errors, started_at, finished_at`

// ListRuns returns the most recent runs first, without field or group stats.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun loads one run with its field and group stats. id may be a unique
// prefix of the full run id.
func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}

	run, err := scanRun(s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, fullID))
	if err != nil {
		return nil, err
	}
	if run.Fields, err = s.runFields(ctx, fullID); err != nil {
		return nil, err
	}
	if run.Groups, err = s.runGroups(ctx, fullID); err != nil {
		return nil, err
	}
	return run, nil
}

// RunRows pages through the stored rows of a run in input order.
func (s *SQLiteStore) RunRows(ctx context.Context, id string, limit, offset int) ([]RowRecord, error) {
	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT row_index, group_key, cleaned, fields FROM run_rows
		 WHERE run_id = ? ORDER BY row_index LIMIT ? OFFSET ?`, fullID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying rows: %w", err)
	}
	defer rows.Close()

	var out []RowRecord
	for rows.Next() {
		var (
			r       RowRecord
			cleaned sql.NullString
			fields  string
		)
		if err := rows.Scan(&r.Index, &r.Group, &cleaned, &fields); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if cleaned.Valid {
			r.Cleaned = &cleaned.String
		}
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return nil, fmt.Errorf("decoding row %d: %w", r.Index, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and everything stored with it.
func (s *SQLiteStore) DeleteRun(ctx context.Context, id string) error {
	fullID, err := s.resolveID(ctx, id)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()
	// foreign_keys is per connection; delete children explicitly.
	for _, table := range []string{"run_rows", "run_groups", "run_fields", "runs"} {
		col := "run_id"
		if table == "runs" {
			col = "id"
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE `+col+` = ?`, fullID); err != nil {
			return fmt.Errorf("deleting run %s from %s: %w", fullID, table, err)
		}
	}
	return tx.Commit()
}

// resolveID maps an exact id or unique prefix to the stored id.
func (s *SQLiteStore) resolveID(ctx context.Context, id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty id", ErrNotFound)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM runs WHERE id = ? OR substr(id, 1, ?) = ? ORDER BY id = ? DESC LIMIT 2`,
		id, len(id), id, id)
	if err != nil {
		return "", fmt.Errorf("resolving run id: %w", err)
	}
	defer rows.Close()

	var matches []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return "", fmt.Errorf("resolving run id: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("resolving run id: %w", err)
	}

	switch {
	case len(matches) == 0:
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	case matches[0] == id || len(matches) == 1:
		return matches[0], nil
	}
	return "", fmt.Errorf("run id prefix %q is ambiguous", id)
}

func (s *SQLiteStore) runFields(ctx context.Context, id string) ([]pipeline.FieldStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, count, percentage, samples FROM run_fields WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("querying field stats: %w", err)
	}
	defer rows.Close()

	var out []pipeline.FieldStat
	for rows.Next() {
		var (
			f       pipeline.FieldStat
			samples string
		)
		if err := rows.Scan(&f.Field, &f.Count, &f.Percentage, &samples); err != nil {
			return nil, fmt.Errorf("scanning field stat: %w", err)
		}
		if err := json.Unmarshal([]byte(samples), &f.Samples); err != nil {
			return nil, fmt.Errorf("decoding samples for %s: %w", f.Field, err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) runGroups(ctx context.Context, id string) ([]pipeline.GroupStat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT group_key, display_name, records, mandatory_filled, mandatory_total, completeness
		 FROM run_groups WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("querying group stats: %w", err)
	}
	defer rows.Close()

	var out []pipeline.GroupStat
	for rows.Next() {
		var g pipeline.GroupStat
		if err := rows.Scan(&g.Group, &g.DisplayName, &g.Records, &g.MandatoryFilled, &g.MandatoryTotal, &g.Completeness); err != nil {
			return nil, fmt.Errorf("scanning group stat: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*RunRecord, error) {
	var (
		r                 RunRecord
		errorsJSON        string
		started, finished string
	)
	err := row.Scan(&r.ID, &r.Input, &r.State, &r.Success, &r.NotesColumn, &r.GroupColumn,
		&r.ChunkSize, &r.Workers, &r.TotalRecords, &r.SuccessfulRecords, &r.SuccessRate,
		&r.Chunks, &errorsJSON, &started, &finished)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning run: %w", err)
	}
	if err := json.Unmarshal([]byte(errorsJSON), &r.Errors); err != nil {
		return nil, fmt.Errorf("decoding errors of run %s: %w", r.ID, err)
	}
	r.StartedAt = parseTime(started)
	r.FinishedAt = parseTime(finished)
	return &r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
