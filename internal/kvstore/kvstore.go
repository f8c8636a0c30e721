// Package kvstore provides a SQLite-backed key/value store partitioned into
// named buckets. It backs the legacy recovery tiers.
package kvstore

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	scope      TEXT NOT NULL,
	key        TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (scope, key)
);
`

// Bucket names used by the recovery store.
const (
	BucketGlobal  = "global"
	BucketSession = "session"
)

// DB wraps a sql.DB holding the kv table.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("kvstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("kvstore: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("kvstore: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Bucket returns the key space named scope.
func (db *DB) Bucket(scope string) *Bucket {
	return &Bucket{db: db, scope: scope}
}

// ClearScope removes every key in scope. Session buckets are cleared at
// process start.
func (db *DB) ClearScope(scope string) error {
	if _, err := db.conn.Exec(`DELETE FROM kv WHERE scope = ?`, scope); err != nil {
		return fmt.Errorf("kvstore: clear %s: %w", scope, err)
	}
	return nil
}
