package store

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/ifarchive/indexadmin/internal/index"
)

// EntryRecord is one cataloged block. The directory's own block is stored
// at position 0 under the filename ".".
type EntryRecord struct {
	ID          int64          `json:"id"`
	Dirname     string         `json:"dirname"`
	Filename    string         `json:"filename"`
	Position    int            `json:"position"`
	Description string         `json:"description,omitempty"`
	Metadata    index.Metadata `json:"metadata"`
}

// ReplaceDir swaps the catalog rows for d.Dirname in one transaction.
func (db *DB) ReplaceDir(d *index.Dir, contentHash string, modified float64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := deleteDirTx(tx, d.Dirname); err != nil {
		return err
	}

	entryStmt, err := tx.Prepare(`
		INSERT INTO entries (dirname, filename, position, description)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare entry stmt: %w", err)
	}
	defer entryStmt.Close()

	metaStmt, err := tx.Prepare(`
		INSERT INTO entry_metadata (entry_id, position, key, value)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare metadata stmt: %w", err)
	}
	defer metaStmt.Close()

	insert := func(pos int, filename, desc string, md index.Metadata) error {
		res, err := entryStmt.Exec(d.Dirname, filename, pos, desc)
		if err != nil {
			return fmt.Errorf("insert entry %s: %w", filename, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}
		for i, p := range md {
			if _, err := metaStmt.Exec(id, i, p.Key, p.Value); err != nil {
				return fmt.Errorf("insert metadata %s: %w", filename, err)
			}
		}
		return nil
	}

	if err := insert(0, index.DirSentinel, d.Description, d.Metadata); err != nil {
		return err
	}
	for i, f := range d.Files {
		if err := insert(i+1, f.Filename, f.Description, f.Metadata); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`
		INSERT INTO index_files (dirname, content_hash, modified, indexed_at)
		VALUES (?, ?, ?, unixepoch())`,
		d.Dirname, contentHash, modified,
	); err != nil {
		return fmt.Errorf("insert index file: %w", err)
	}
	return tx.Commit()
}

// DeleteDir removes every row for dirname.
func (db *DB) DeleteDir(dirname string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := deleteDirTx(tx, dirname); err != nil {
		return err
	}
	return tx.Commit()
}

func deleteDirTx(tx *sql.Tx, dirname string) error {
	// Metadata first (referential)
	if _, err := tx.Exec(
		"DELETE FROM entry_metadata WHERE entry_id IN (SELECT id FROM entries WHERE dirname = ?)",
		dirname,
	); err != nil {
		return fmt.Errorf("delete metadata: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM entries WHERE dirname = ?", dirname); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM index_files WHERE dirname = ?", dirname); err != nil {
		return fmt.Errorf("delete index file: %w", err)
	}
	return nil
}

// GetContentHashes returns dirname → content_hash for every cataloged
// Index file. Used for incremental recataloging.
func (db *DB) GetContentHashes() (map[string]string, error) {
	rows, err := db.conn.Query("SELECT dirname, content_hash FROM index_files")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hashes := make(map[string]string)
	for rows.Next() {
		var dirname, hash string
		if err := rows.Scan(&dirname, &hash); err != nil {
			return nil, err
		}
		hashes[dirname] = hash
	}
	return hashes, rows.Err()
}

// DirCount returns the number of cataloged Index files.
func (db *DB) DirCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM index_files").Scan(&count)
	return count, err
}

// EntryCount returns the number of cataloged file entries, not counting
// directory blocks.
func (db *DB) EntryCount() (int, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM entries WHERE position > 0").Scan(&count)
	return count, err
}

// FindByMetadata returns entries carrying key. A non-empty value must also
// match exactly.
func (db *DB) FindByMetadata(key, value string, limit int) ([]EntryRecord, error) {
	query := `
		SELECT DISTINCT e.id, e.dirname, e.filename, e.position, e.description
		FROM entries e JOIN entry_metadata m ON m.entry_id = e.id
		WHERE m.key = ?`
	args := []interface{}{key}
	if value != "" {
		query += " AND m.value = ?"
		args = append(args, value)
	}
	query += " ORDER BY e.dirname, e.position LIMIT ?"
	args = append(args, clampLimit(limit))

	return db.queryEntries(query, args...)
}

// SearchDescriptions returns entries whose filename or description contains
// term, case-insensitively for ASCII.
func (db *DB) SearchDescriptions(term string, limit int) ([]EntryRecord, error) {
	pattern := "%" + escapeLike(term) + "%"
	return db.queryEntries(`
		SELECT id, dirname, filename, position, description
		FROM entries
		WHERE description LIKE ? ESCAPE '\' OR filename LIKE ? ESCAPE '\'
		ORDER BY dirname, position LIMIT ?`,
		pattern, pattern, clampLimit(limit))
}

func (db *DB) queryEntries(query string, args ...interface{}) ([]EntryRecord, error) {
	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	var records []EntryRecord
	for rows.Next() {
		var r EntryRecord
		if err := rows.Scan(&r.ID, &r.Dirname, &r.Filename, &r.Position, &r.Description); err != nil {
			rows.Close()
			return nil, err
		}
		records = append(records, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := db.attachMetadata(records); err != nil {
		return nil, err
	}
	return records, nil
}

// attachMetadata loads metadata for records with a single IN query.
func (db *DB) attachMetadata(records []EntryRecord) error {
	if len(records) == 0 {
		return nil
	}
	placeholders := make([]string, len(records))
	args := make([]interface{}, len(records))
	byID := make(map[int64]int, len(records))
	for i, r := range records {
		placeholders[i] = "?"
		args[i] = r.ID
		byID[r.ID] = i
	}
	rows, err := db.conn.Query(
		"SELECT entry_id, key, value FROM entry_metadata WHERE entry_id IN ("+
			strings.Join(placeholders, ",")+") ORDER BY entry_id, position",
		args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var p index.Pair
		if err := rows.Scan(&id, &p.Key, &p.Value); err != nil {
			return err
		}
		i := byID[id]
		records[i].Metadata = append(records[i].Metadata, p)
	}
	return rows.Err()
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

const maxResults = 500

func clampLimit(limit int) int {
	if limit <= 0 || limit > maxResults {
		return maxResults
	}
	return limit
}
