package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Timestamps are unix nanoseconds so ORDER BY works without parsing.
const sqliteSchemaSQL = `
CREATE TABLE IF NOT EXISTS projects (
	id                    TEXT PRIMARY KEY,
	name                  TEXT NOT NULL DEFAULT '',
	created_at            INTEGER NOT NULL,
	updated_at            INTEGER NOT NULL,
	project_analysis      TEXT NOT NULL DEFAULT '',
	arrangement_reasoning TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS blocks (
	id           TEXT PRIMARY KEY,
	project_id   TEXT NOT NULL,
	title        TEXT NOT NULL DEFAULT '',
	description  TEXT NOT NULL DEFAULT '',
	level        INTEGER NOT NULL DEFAULT 0,
	ord          INTEGER NOT NULL DEFAULT 0,
	category     TEXT,
	dependencies TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX IF NOT EXISTS idx_blocks_project_level ON blocks(project_id, level, ord);

CREATE TABLE IF NOT EXISTS metadata (
	project_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	value      TEXT NOT NULL,
	PRIMARY KEY (project_id, name)
);
`

// SQLite implements Provider on a local SQLite file.
type SQLite struct {
	conn *sql.DB
}

var _ Provider = (*SQLite)(nil)

// OpenSQLite opens (or creates) the database at path and applies the schema.
// Write transactions take the lock up front so order assignment in
// CreateBlock cannot interleave.
func OpenSQLite(path string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}
	if _, err := conn.Exec(sqliteSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply sqlite schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Ping checks the database handle.
func (s *SQLite) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}
