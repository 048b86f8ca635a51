// Package store persists audit entries, tool executions, and long-term
// memories in a single SQLite database.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sync"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS audit_logs (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	source        TEXT NOT NULL,
	user_id       TEXT,
	session_id    TEXT,
	message_type  TEXT NOT NULL,
	content       TEXT NOT NULL,
	metadata      TEXT
);

CREATE TABLE IF NOT EXISTS tool_executions (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	audit_log_id   INTEGER REFERENCES audit_logs(id),
	timestamp      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	tool_name      TEXT NOT NULL,
	parameters     TEXT NOT NULL,
	result         TEXT,
	duration_ms    INTEGER NOT NULL DEFAULT 0,
	success        INTEGER NOT NULL DEFAULT 1,
	error_message  TEXT
);

CREATE TABLE IF NOT EXISTS memories (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	category    TEXT NOT NULL,
	content     TEXT NOT NULL,
	source      TEXT,
	user_id     TEXT
);

CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_logs(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_source ON audit_logs(source);
CREATE INDEX IF NOT EXISTS idx_audit_message_type ON audit_logs(message_type);
CREATE INDEX IF NOT EXISTS idx_tool_executions_name ON tool_executions(tool_name);
CREATE INDEX IF NOT EXISTS idx_memories_category ON memories(category);
`

// Store owns the database connection. Writes are serialized behind a
// mutex; SQLite allows a single writer at a time.
type Store struct {
	db  *sql.DB
	mu  sync.Mutex
	log *slog.Logger

	Audit    *AuditRepository
	Memories *MemoryRepository
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// A single connection keeps writes ordered and sidesteps SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: configure: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	s := &Store{
		db:  db,
		log: slog.With("component", "store"),
	}
	s.Audit = &AuditRepository{store: s}
	s.Memories = &MemoryRepository{store: s}
	s.log.Info("database ready", "path", path)
	return s, nil
}

// DB exposes the underlying connection for ad-hoc queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
