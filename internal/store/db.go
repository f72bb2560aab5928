// Package store provides the SQLite catalog of parsed Index files.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps a SQLite connection.
type DB struct {
	conn *sql.DB
	mu   sync.Mutex // serialize writes
}

// OpenPath opens or creates the database at the given path.
func OpenPath(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database for testing.
func OpenMemory() (*DB, error) {
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	// Each pooled connection would get its own empty database.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying sql.DB for direct queries.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// GetMeta returns a value from the meta table.
func (db *DB) GetMeta(key string) (string, bool) {
	var value string
	if err := db.conn.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&value); err != nil {
		return "", false
	}
	return value, true
}

// SetMeta upserts a value in the meta table.
func (db *DB) SetMeta(key, value string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(
		`INSERT INTO meta (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS index_files (
			dirname TEXT PRIMARY KEY,
			content_hash TEXT NOT NULL,
			modified REAL NOT NULL,
			indexed_at INTEGER NOT NULL DEFAULT (unixepoch())
		)`,

		`CREATE TABLE IF NOT EXISTS entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			dirname TEXT NOT NULL,
			filename TEXT NOT NULL,
			position INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_dirname ON entries(dirname)`,
		`CREATE INDEX IF NOT EXISTS idx_entries_filename ON entries(filename)`,

		`CREATE TABLE IF NOT EXISTS entry_metadata (
			entry_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entry_metadata_entry ON entry_metadata(entry_id)`,
		`CREATE INDEX IF NOT EXISTS idx_entry_metadata_key_value ON entry_metadata(key, value)`,

		`CREATE TABLE IF NOT EXISTS edit_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp TEXT NOT NULL,
			dirname TEXT NOT NULL,
			filename TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			backup TEXT NOT NULL DEFAULT '',
			deleted INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_edit_log_timestamp ON edit_log(timestamp)`,

		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}
