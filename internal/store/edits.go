package store

import "fmt"

// EditRecord is one save made through indexadmin.
type EditRecord struct {
	ID        int64  `json:"id,omitempty"`
	Timestamp string `json:"timestamp"`
	Dirname   string `json:"dirname"`
	Filename  string `json:"filename"`
	Source    string `json:"source"` // "cli", "web", "import"
	Backup    string `json:"backup,omitempty"`
	Deleted   bool   `json:"deleted"`
}

// RecordEdit logs a save. An empty Timestamp is filled with the current
// UTC time.
func (db *DB) RecordEdit(rec *EditRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	deleted := 0
	if rec.Deleted {
		deleted = 1
	}
	_, err := db.conn.Exec(`
		INSERT INTO edit_log (timestamp, dirname, filename, source, backup, deleted)
		VALUES (COALESCE(NULLIF(?, ''), strftime('%Y-%m-%dT%H:%M:%SZ', 'now')), ?, ?, ?, ?, ?)`,
		rec.Timestamp, rec.Dirname, rec.Filename, rec.Source, rec.Backup, deleted,
	)
	if err != nil {
		return fmt.Errorf("insert edit: %w", err)
	}
	return nil
}

// RecentEdits returns the newest edits first.
func (db *DB) RecentEdits(limit int) ([]EditRecord, error) {
	rows, err := db.conn.Query(`
		SELECT id, timestamp, dirname, filename, source, backup, deleted
		FROM edit_log
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []EditRecord
	for rows.Next() {
		var r EditRecord
		var deleted int
		if err := rows.Scan(&r.ID, &r.Timestamp, &r.Dirname, &r.Filename,
			&r.Source, &r.Backup, &deleted); err != nil {
			return nil, err
		}
		r.Deleted = deleted != 0
		records = append(records, r)
	}
	return records, rows.Err()
}
