package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteHistorySink is a SQLite-backed HistorySink. Designed for:
//   - Local runs needing a durable diagnostic trail without a server
//   - Development and CI, with zero external setup
//
// Uses WAL mode for concurrent readers while a run is writing.
type SQLiteHistorySink struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteHistorySink opens (creating if absent) a SQLite database at path
// and ensures the history table exists. Use ":memory:" for an ephemeral,
// process-local database.
func NewSQLiteHistorySink(path string) (*SQLiteHistorySink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	sink := &SQLiteHistorySink{db: db}
	if err := sink.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *SQLiteHistorySink) createTable(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS run_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			state TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(run_id, step)
		)
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create run_history table: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_run_history_run_id ON run_history(run_id)"); err != nil {
		return fmt.Errorf("create idx_run_history_run_id: %w", err)
	}
	return nil
}

// SaveSnapshot inserts one row per (runID, step). A duplicate step for the
// same run is rejected by the table's UNIQUE constraint.
func (s *SQLiteHistorySink) SaveSnapshot(ctx context.Context, runID string, step int, snapshot map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("sqlite history sink is closed")
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO run_history (run_id, step, state) VALUES (?, ?, ?)",
		runID, step, string(payload))
	if err != nil {
		return fmt.Errorf("insert run_history: %w", err)
	}
	return nil
}

// LoadHistory returns every snapshot for runID ordered by step.
func (s *SQLiteHistorySink) LoadHistory(ctx context.Context, runID string) ([]Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx,
		"SELECT step, state, created_at FROM run_history WHERE run_id = ? ORDER BY step ASC",
		runID)
	if err != nil {
		return nil, fmt.Errorf("query run_history: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var raw string
		if err := rows.Scan(&snap.Step, &raw, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run_history row: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &snap.State); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot state: %w", err)
		}
		snap.RunID = runID
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

// Close closes the underlying database handle.
func (s *SQLiteHistorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
