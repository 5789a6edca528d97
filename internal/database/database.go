// Package database stores classification runs in SQLite: the cleaned rows a
// run worked on, one result per row, agreement metrics and the rendered
// report.
package database

import (
	"database/sql"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	conn *sql.DB
	path string
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "creating data directory")
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, eris.Wrap(err, "opening database")
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "setting journal mode")
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "enabling foreign keys")
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "migrating schema")
	}

	return &DB{conn: conn, path: dbPath}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}
