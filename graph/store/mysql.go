package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLHistorySink is a MySQL/MariaDB-backed HistorySink. Designed for:
//   - Production deployments wanting a shared, durable diagnostic trail
//   - Multiple Engine processes writing history to one database
type MySQLHistorySink struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewMySQLHistorySink opens a MySQL connection via dsn (e.g.
// "user:pass@tcp(127.0.0.1:3306)/dbname?parseTime=true") and ensures the
// history table exists.
func NewMySQLHistorySink(ctx context.Context, dsn string) (*MySQLHistorySink, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	sink := &MySQLHistorySink{db: db}
	if err := sink.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (m *MySQLHistorySink) createTable(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS run_history (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			run_id VARCHAR(255) NOT NULL,
			step INT NOT NULL,
			state JSON NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uniq_run_step (run_id, step),
			KEY idx_run_id (run_id)
		) ENGINE=InnoDB
	`
	if _, err := m.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create run_history table: %w", err)
	}
	return nil
}

// SaveSnapshot inserts one row per (runID, step).
func (m *MySQLHistorySink) SaveSnapshot(ctx context.Context, runID string, step int, snapshot map[string]any) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, err = m.db.ExecContext(ctx,
		"INSERT INTO run_history (run_id, step, state) VALUES (?, ?, ?)",
		runID, step, string(payload))
	if err != nil {
		return fmt.Errorf("insert run_history: %w", err)
	}
	return nil
}

// LoadHistory returns every snapshot for runID ordered by step.
func (m *MySQLHistorySink) LoadHistory(ctx context.Context, runID string) ([]Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, err := m.db.QueryContext(ctx,
		"SELECT step, state, created_at FROM run_history WHERE run_id = ? ORDER BY step ASC",
		runID)
	if err != nil {
		return nil, fmt.Errorf("query run_history: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var snap Snapshot
		var raw []byte
		if err := rows.Scan(&snap.Step, &raw, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run_history row: %w", err)
		}
		if err := json.Unmarshal(raw, &snap.State); err != nil {
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
func (m *MySQLHistorySink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Close()
}
