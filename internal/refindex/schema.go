// Package refindex provides the SQLite-backed cross-reference index over
// serialized workspace documents.
package refindex

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	path       TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL DEFAULT '',
	stamp      TEXT NOT NULL DEFAULT '',
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS xrefs (
	source_doc TEXT NOT NULL,
	source_obj TEXT NOT NULL,
	field      TEXT NOT NULL,
	target_doc TEXT NOT NULL,
	target_obj TEXT NOT NULL,
	pending    INTEGER NOT NULL DEFAULT 0,
	UNIQUE(source_doc, source_obj, field, target_doc, target_obj)
);

CREATE INDEX IF NOT EXISTS idx_xrefs_source ON xrefs(source_doc);
CREATE INDEX IF NOT EXISTS idx_xrefs_target ON xrefs(target_doc, target_obj);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("refindex: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("refindex: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("refindex: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
