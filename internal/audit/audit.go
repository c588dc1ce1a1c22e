// Package audit keeps a metadata-only record of every report request.
// Answers and generated reports are never written.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	OutcomeMethodRejected = "method_rejected"
	OutcomeUnauthorized   = "unauthorized"
	OutcomeSuccess        = "success"
	OutcomeFailure        = "failure"
)

// Entry is one handled request
type Entry struct {
	ID            string
	ReceivedAt    time.Time
	Method        string
	Status        int
	Outcome       string
	OutcomeDetail string // Error class for failures, never payload content
	Duration      time.Duration
	PayloadBytes  int
}

// Store persists entries in SQLite
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the audit database
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	createRequestsTable := `
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		received_at DATETIME,
		method TEXT,
		status INTEGER,
		outcome TEXT,
		outcome_detail TEXT,
		duration_ms INTEGER,
		payload_bytes INTEGER
	);`

	if _, err := db.Exec(createRequestsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create requests table: %w", err)
	}

	return &Store{db: db}, nil
}

// Record saves a single entry
func (s *Store) Record(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (id, received_at, method, status, outcome, outcome_detail, duration_ms, payload_bytes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.ReceivedAt.UTC(), e.Method, e.Status, e.Outcome, e.OutcomeDetail, e.Duration.Milliseconds(), e.PayloadBytes,
	)
	if err != nil {
		return fmt.Errorf("failed to save audit entry: %w", err)
	}
	return nil
}

// Recent returns the latest entries, newest first
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, received_at, method, status, outcome, outcome_detail, duration_ms, payload_bytes
		FROM requests ORDER BY received_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit entries: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var durationMs int64
		if err := rows.Scan(&e.ID, &e.ReceivedAt, &e.Method, &e.Status, &e.Outcome, &e.OutcomeDetail, &durationMs, &e.PayloadBytes); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Summarize counts entries by outcome
func Summarize(entries []Entry) map[string]int {
	counts := make(map[string]int)
	for _, e := range entries {
		counts[e.Outcome]++
	}
	return counts
}
