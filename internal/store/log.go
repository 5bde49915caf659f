package store

import "fmt"

// AppendLog inserts a log entry and trims the collection to the newest
// cap entries by save time. Entries are never updated in place.
func (db *DB) AppendLog(e LogEntry, cap int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`
		INSERT INTO saved_logs (id, room_id, room_name, start_date, end_date, content, message_count, saved_at, is_auto_save)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RoomID, e.RoomName, e.StartDate, e.EndDate, e.Content, e.MessageCount, e.SavedAt, e.IsAutoSave)
	if err != nil {
		return err
	}

	_, err = tx.Exec(`
		DELETE FROM saved_logs WHERE id NOT IN (
			SELECT id FROM saved_logs ORDER BY saved_at DESC, rowid DESC LIMIT ?
		)`, cap)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// ListLogs returns saved log entries, most recent first.
func (db *DB) ListLogs() ([]LogEntry, error) {
	rows, err := db.Query(`
		SELECT id, room_id, room_name, start_date, end_date, content, message_count, saved_at, is_auto_save
		FROM saved_logs ORDER BY saved_at DESC, rowid DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []LogEntry
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.RoomID, &e.RoomName, &e.StartDate, &e.EndDate, &e.Content, &e.MessageCount, &e.SavedAt, &e.IsAutoSave); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// LatestAutoSave returns the newest auto-save entry for a room, or nil.
func (db *DB) LatestAutoSave(roomID string) (*LogEntry, error) {
	rows, err := db.Query(`
		SELECT id, room_id, room_name, start_date, end_date, content, message_count, saved_at, is_auto_save
		FROM saved_logs
		WHERE room_id = ? AND is_auto_save = 1
		ORDER BY saved_at DESC, rowid DESC LIMIT 1`, roomID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var e LogEntry
	if err := rows.Scan(&e.ID, &e.RoomID, &e.RoomName, &e.StartDate, &e.EndDate, &e.Content, &e.MessageCount, &e.SavedAt, &e.IsAutoSave); err != nil {
		return nil, err
	}
	return &e, nil
}
