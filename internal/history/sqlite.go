// Package history persists completed pipeline runs. The store is
// append-only; the broker core never reads it back.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/toolweave/toolweave"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	id               TEXT PRIMARY KEY,
	request_text     TEXT NOT NULL,
	success          INTEGER NOT NULL,
	confidence       REAL,
	snapshot_version INTEGER,
	steps            TEXT NOT NULL,
	final_output     TEXT,
	started_at       TEXT NOT NULL,
	completed_at     TEXT NOT NULL,
	duration_ms      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs (started_at);
`

// SQLiteStore is a toolweave.HistoryStore backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the history database at path and
// ensures the schema exists.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, toolweave.NewHistoryError("open", err)
	}

	// The pure-Go driver serializes writes; a single connection avoids
	// SQLITE_BUSY churn under concurrent appends.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, toolweave.NewHistoryError("migrate", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append inserts one completed run.
func (s *SQLiteStore) Append(ctx context.Context, run *toolweave.PipelineRun) error {
	steps, err := json.Marshal(run.Steps)
	if err != nil {
		return toolweave.NewHistoryError("append", err)
	}

	var finalOutput []byte
	if run.FinalOutput != nil {
		finalOutput, err = json.Marshal(run.FinalOutput)
		if err != nil {
			return toolweave.NewHistoryError("append", err)
		}
	}

	var confidence float64
	var snapshotVersion uint64
	if run.Plan != nil {
		confidence = run.Plan.Confidence
		snapshotVersion = run.Plan.SnapshotVersion
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs
			(id, request_text, success, confidence, snapshot_version,
			 steps, final_output, started_at, completed_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.RequestText,
		boolToInt(run.Success),
		confidence,
		snapshotVersion,
		string(steps),
		string(finalOutput),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.CompletedAt.UTC().Format(time.RFC3339Nano),
		run.Duration.Milliseconds(),
	)
	if err != nil {
		return toolweave.NewHistoryError("append", err)
	}
	return nil
}

// Count returns the number of stored runs.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_runs`).Scan(&count); err != nil {
		return 0, toolweave.NewHistoryError("count", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
