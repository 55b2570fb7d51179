// File path: internal/audit/store.go
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/careatlas/nlsql/internal/agent"
)

// Store is the append-only audit sink. One row per terminal request plus one
// row per iteration record; rows are written once and never updated.
type Store struct {
	db *sqlx.DB
}

// Open constructs a Store backed by the SQLite database at the provided
// path, migrating the schema on first use. An empty path falls back to
// NLSQL_AUDIT_PATH, then to data/audit.db.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		path = strings.TrimSpace(os.Getenv("NLSQL_AUDIT_PATH"))
	}
	if path == "" {
		path = filepath.Join("data", "audit.db")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve audit path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", abs)
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping audit store: %w", err)
	}
	store := &Store{db: db}
	if err := store.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close releases the underlying database resources.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin audit migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute audit schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit migration: %w", err)
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS requests (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                request_id TEXT NOT NULL UNIQUE,
                user_id TEXT,
                question TEXT NOT NULL,
                state TEXT NOT NULL,
                sql_text TEXT,
                snapshot_id TEXT NOT NULL,
                rule_version TEXT NOT NULL,
                violations TEXT,
                iterations INTEGER NOT NULL DEFAULT 0,
                duration_ms INTEGER NOT NULL DEFAULT 0,
                created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS iterations (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                request_id TEXT NOT NULL,
                iteration_index INTEGER NOT NULL,
                tool_name TEXT NOT NULL,
                parameters TEXT,
                result_summary TEXT,
                recorded_at DATETIME NOT NULL,
                FOREIGN KEY(request_id) REFERENCES requests(request_id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_requests_created ON requests(created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_iterations_request ON iterations(request_id, iteration_index);`,
}

// RecordRequest persists one terminal request and its iteration trace in a
// single transaction.
func (s *Store) RecordRequest(ctx context.Context, record agent.AuditRecord) error {
	if s == nil || s.db == nil {
		return errors.New("audit store not initialised")
	}
	violations, err := json.Marshal(record.Violations)
	if err != nil {
		return fmt.Errorf("encode violations: %w", err)
	}
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin audit write: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO requests (request_id, user_id, question, state, sql_text, snapshot_id, rule_version, violations, iterations, duration_ms, created_at)
                 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.RequestID, record.UserID, record.Question, record.State,
		record.SQL, record.SnapshotID, record.RuleVersion, string(violations),
		record.Iterations, record.DurationMS, record.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("insert audit request: %w", err)
	}
	for _, rec := range record.Records {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO iterations (request_id, iteration_index, tool_name, parameters, result_summary, recorded_at)
                         VALUES (?, ?, ?, ?, ?, ?)`,
			record.RequestID, rec.Index, rec.ToolName, rec.Parameters, rec.ResultSummary, rec.Timestamp.UTC().Format(time.RFC3339Nano))
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert audit iteration: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit write: %w", err)
	}
	return nil
}

// Trace is the stored view of one request's audit trail.
type Trace struct {
	RequestID  string                  `json:"request_id"`
	UserID     string                  `json:"user_id,omitempty"`
	Question   string                  `json:"question"`
	State      string                  `json:"state"`
	SQL        string                  `json:"sql,omitempty"`
	SnapshotID string                  `json:"snapshot_id"`
	RuleVer    string                  `json:"rule_version"`
	Violations []string                `json:"violations,omitempty"`
	Iterations int                     `json:"iterations"`
	DurationMS int64                   `json:"duration_ms"`
	CreatedAt  time.Time               `json:"created_at"`
	Records    []agent.IterationRecord `json:"records"`
}

type requestRow struct {
	RequestID  string `db:"request_id"`
	UserID     string `db:"user_id"`
	Question   string `db:"question"`
	State      string `db:"state"`
	SQLText    string `db:"sql_text"`
	SnapshotID string `db:"snapshot_id"`
	RuleVer    string `db:"rule_version"`
	Violations string `db:"violations"`
	Iterations int    `db:"iterations"`
	DurationMS int64  `db:"duration_ms"`
	CreatedAt  string `db:"created_at"`
}

type iterationRow struct {
	Index         int    `db:"iteration_index"`
	ToolName      string `db:"tool_name"`
	Parameters    string `db:"parameters"`
	ResultSummary string `db:"result_summary"`
	RecordedAt    string `db:"recorded_at"`
}

// ErrNotFound reports an unknown request id.
var ErrNotFound = errors.New("audit record not found")

// RequestTrace loads one request and its ordered iteration records.
func (s *Store) RequestTrace(ctx context.Context, requestID string) (*Trace, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("audit store not initialised")
	}
	var row requestRow
	err := s.db.GetContext(ctx, &row,
		`SELECT request_id, COALESCE(user_id, '') AS user_id, question, state,
                        COALESCE(sql_text, '') AS sql_text, snapshot_id, rule_version,
                        COALESCE(violations, '[]') AS violations, iterations, duration_ms, created_at
                 FROM requests WHERE request_id = ?`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load audit request: %w", err)
	}
	var iters []iterationRow
	err = s.db.SelectContext(ctx, &iters,
		`SELECT iteration_index, tool_name, COALESCE(parameters, '') AS parameters,
                        COALESCE(result_summary, '') AS result_summary, recorded_at
                 FROM iterations WHERE request_id = ? ORDER BY id`, requestID)
	if err != nil {
		return nil, fmt.Errorf("load audit iterations: %w", err)
	}
	trace := &Trace{
		RequestID:  row.RequestID,
		UserID:     row.UserID,
		Question:   row.Question,
		State:      row.State,
		SQL:        row.SQLText,
		SnapshotID: row.SnapshotID,
		RuleVer:    row.RuleVer,
		Iterations: row.Iterations,
		DurationMS: row.DurationMS,
		CreatedAt:  parseStoredTime(row.CreatedAt),
	}
	if err := json.Unmarshal([]byte(row.Violations), &trace.Violations); err != nil {
		trace.Violations = nil
	}
	for _, iter := range iters {
		trace.Records = append(trace.Records, agent.IterationRecord{
			Index:         iter.Index,
			ToolName:      iter.ToolName,
			Parameters:    iter.Parameters,
			ResultSummary: iter.ResultSummary,
			Timestamp:     parseStoredTime(iter.RecordedAt),
		})
	}
	return trace, nil
}

// parseStoredTime tolerates older rows written by sqlite's own
// CURRENT_TIMESTAMP default.
func parseStoredTime(raw string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts
		}
	}
	return time.Time{}
}
