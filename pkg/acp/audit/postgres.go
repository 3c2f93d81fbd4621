// Package audit optionally records session and tool-call lifecycle
// metadata to PostgreSQL, for deployments that need a durable record of
// "what tools ran, when, with what outcome" independent of the agent's
// own transcript. It never records message content or tool-call raw
// input/output: those can carry arbitrary user data, and the audit
// trail is a compliance log, not a transcript store.
//
// Grounded on internal/db/postgres.go's sql.Open("pgx", dsn) +
// connection-pool-sizing pattern.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const schema = `
CREATE TABLE IF NOT EXISTS acp_session_events (
	id          BIGSERIAL PRIMARY KEY,
	session_id  TEXT NOT NULL,
	event       TEXT NOT NULL,
	tool_call_id TEXT,
	tool_kind    TEXT,
	status       TEXT,
	occurred_at  TIMESTAMPTZ NOT NULL
);
`

// Sink is a PostgreSQL-backed audit sink.
type Sink struct {
	db *sql.DB
}

// Open opens a connection pool against dsn and ensures the schema
// exists. maxConns/minConns of 0 fall back to 25/5, matching
// internal/db/postgres.go's defaults.
func Open(dsn string, maxConns, minConns int) (*Sink, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open postgres: %w", err)
	}
	if maxConns <= 0 {
		maxConns = 25
	}
	if minConns <= 0 {
		minConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(minConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: ping postgres: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("audit: migrate schema: %w", err)
	}
	return &Sink{db: db}, nil
}

// Close releases the connection pool.
func (s *Sink) Close() error { return s.db.Close() }

// RecordSessionEvent logs a session-lifecycle event (created, resumed,
// forked, removed) with no payload beyond the session id.
func (s *Sink) RecordSessionEvent(ctx context.Context, sessionID, event string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO acp_session_events (session_id, event, occurred_at)
		VALUES ($1, $2, $3)
	`, sessionID, event, time.Now())
	return err
}

// RecordToolCallEvent logs a tool-call lifecycle transition. Only the
// kind and status are recorded, never Content/RawInput/RawOutput.
func (s *Sink) RecordToolCallEvent(ctx context.Context, sessionID, toolCallID, toolKind, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO acp_session_events (session_id, event, tool_call_id, tool_kind, status, occurred_at)
		VALUES ($1, 'tool_call', $2, $3, $4, $5)
	`, sessionID, toolCallID, toolKind, status, time.Now())
	return err
}
