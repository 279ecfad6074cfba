package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/amishk599/leadradar/internal/checkpoint"
	"github.com/amishk599/leadradar/internal/model"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS checkpoints (
	pipeline TEXT NOT NULL,
	key      TEXT NOT NULL,
	result   TEXT NOT NULL,
	PRIMARY KEY (pipeline, key)
)`,
	`CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	pipeline    TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	total       INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	tokens      INTEGER NOT NULL,
	flushes     INTEGER NOT NULL
)`,
}

// SQLiteStore keeps checkpoints and the run history in a SQLite database.
// Checkpoints are namespaced by pipeline name.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the
// tables exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating tables: %w", err)
		}
	}

	return &SQLiteStore{db: db}, nil
}

// Checkpoint returns the checkpoint backend of one pipeline.
func (s *SQLiteStore) Checkpoint(pipeline string) *SQLiteCheckpoint {
	return &SQLiteCheckpoint{db: s.db, pipeline: pipeline}
}

// RecordRun stores a finished run.
func (s *SQLiteStore) RecordRun(ctx context.Context, r model.RunReport) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO runs
		(run_id, pipeline, started_at, finished_at, total, skipped, succeeded, failed, tokens, flushes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Pipeline,
		r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout),
		r.Total, r.Skipped, r.Succeeded, r.Failed, r.Tokens, r.Flushes,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]model.RunReport, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT run_id, pipeline, started_at, finished_at,
		total, skipped, succeeded, failed, tokens, flushes
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunReport
	for rows.Next() {
		var r model.RunReport
		var started, finished string
		if err := rows.Scan(&r.RunID, &r.Pipeline, &started, &finished,
			&r.Total, &r.Skipped, &r.Succeeded, &r.Failed, &r.Tokens, &r.Flushes); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeLayout, started)
		r.FinishedAt, _ = time.Parse(timeLayout, finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// PruneRuns deletes run records older than the given duration.
func (s *SQLiteStore) PruneRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).UTC().Format(timeLayout)
	res, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning runs older than %v: %w", olderThan, err)
	}
	return res.RowsAffected()
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SQLiteCheckpoint is a model.CheckpointBackend over the checkpoints table.
type SQLiteCheckpoint struct {
	db       *sql.DB
	pipeline string
}

// Load reads every result of the pipeline. Rows that do not decode make the
// checkpoint corrupt.
func (c *SQLiteCheckpoint) Load(ctx context.Context) (map[string]model.Result, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT key, result FROM checkpoints WHERE pipeline = ?", c.pipeline)
	if err != nil {
		return nil, fmt.Errorf("loading %s checkpoint: %w", c.pipeline, err)
	}
	defer rows.Close()

	entries := make(map[string]model.Result)
	for rows.Next() {
		var key, raw string
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scanning %s checkpoint: %w", c.pipeline, err)
		}
		var r model.Result
		if err := json.Unmarshal([]byte(raw), &r); err != nil {
			return nil, fmt.Errorf("%s checkpoint entry %q: %v: %w", c.pipeline, key, err, checkpoint.ErrCorrupt)
		}
		r.Key = key
		entries[key] = r
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading %s checkpoint: %w", c.pipeline, err)
	}
	return entries, nil
}

// Save replaces the pipeline's rows with entries in one transaction.
func (c *SQLiteCheckpoint) Save(ctx context.Context, entries map[string]model.Result) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("saving %s checkpoint: %w", c.pipeline, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM checkpoints WHERE pipeline = ?", c.pipeline); err != nil {
		return fmt.Errorf("clearing %s checkpoint: %w", c.pipeline, err)
	}

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO checkpoints (pipeline, key, result) VALUES (?, ?, ?)")
	if err != nil {
		return fmt.Errorf("saving %s checkpoint: %w", c.pipeline, err)
	}
	defer stmt.Close()

	for key, r := range entries {
		raw, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encoding %s entry %q: %w", c.pipeline, key, err)
		}
		if _, err := stmt.ExecContext(ctx, c.pipeline, key, string(raw)); err != nil {
			return fmt.Errorf("writing %s entry %q: %w", c.pipeline, key, err)
		}
	}
	return tx.Commit()
}
