// Package store keeps file metadata and user accounts in SQLite. File
// metadata is a derived index over the notes directory: it annotates files
// with ids, titles, privacy and previews but never decides whether a file exists.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	username      TEXT NOT NULL UNIQUE,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	is_active     BOOLEAN NOT NULL DEFAULT 1,
	created_at    DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS files (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	file_path  TEXT NOT NULL,
	title      TEXT NOT NULL,
	is_public  BOOLEAN NOT NULL DEFAULT 0,
	preview    TEXT NOT NULL DEFAULT '',
	checksum   TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE(user_id, file_path)
);

CREATE INDEX IF NOT EXISTS idx_files_public_created ON files(is_public, created_at);
`

// DefaultPreviewLength is the number of characters kept in a preview.
const DefaultPreviewLength = 200

// DB wraps a sql.DB with metadata and account operations.
type DB struct {
	conn       *sql.DB
	previewLen int
}

// Option configures a DB.
type Option func(*DB)

// WithPreviewLength sets how many characters of content are kept as preview.
func WithPreviewLength(n int) Option {
	return func(db *DB) {
		if n > 0 {
			db.previewLen = n
		}
	}
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	db := &DB{
		conn:       conn,
		previewLen: DefaultPreviewLength,
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
