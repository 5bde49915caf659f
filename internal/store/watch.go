package store

import (
	"database/sql"
	"fmt"
	"time"

	"cwlogd/internal/chatwork"
	"cwlogd/internal/common"
)

// AddWatch inserts a watch entry, or updates the name and interval of an
// existing one. A brand-new entry beyond cap is rejected with
// common.ErrCapacity; the check and insert run in one transaction so the
// cap holds even under racing writers.
func (db *DB) AddWatch(e WatchEntry, cap int) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM watch_rooms WHERE room_id = ?`, e.RoomID).Scan(&exists); err != nil {
		return err
	}

	if exists == 0 {
		var total int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM watch_rooms`).Scan(&total); err != nil {
			return err
		}
		if total >= cap {
			return fmt.Errorf("%w: limit is %d rooms", common.ErrCapacity, cap)
		}
	}

	now := time.Now().UnixMilli()
	_, err = tx.Exec(`
		INSERT INTO watch_rooms (room_id, room_name, interval_days, last_catch_up, created_at)
		VALUES (?, ?, ?, NULL, ?)
		ON CONFLICT(room_id) DO UPDATE SET
			room_name = excluded.room_name,
			interval_days = excluded.interval_days`,
		e.RoomID, e.RoomName, e.IntervalDays, now)
	if err != nil {
		return err
	}
	return tx.Commit()
}

// RemoveWatch deletes a watch entry entirely, including its catch-up
// progress. Re-enabling later starts fresh.
func (db *DB) RemoveWatch(roomID chatwork.RoomID) error {
	_, err := db.Exec(`DELETE FROM watch_rooms WHERE room_id = ?`, roomID)
	return err
}

// GetWatch returns the watch entry for a room, or nil when not watched.
func (db *DB) GetWatch(roomID chatwork.RoomID) (*WatchEntry, error) {
	var e WatchEntry
	var last sql.NullString
	err := db.QueryRow(`
		SELECT room_id, room_name, interval_days, last_catch_up
		FROM watch_rooms WHERE room_id = ?`, roomID).
		Scan(&e.RoomID, &e.RoomName, &e.IntervalDays, &last)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.LastCatchUp = last.String
	return &e, nil
}

// ListWatches returns all watch entries in toggle order.
func (db *DB) ListWatches() ([]WatchEntry, error) {
	rows, err := db.Query(`
		SELECT room_id, room_name, interval_days, last_catch_up
		FROM watch_rooms ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []WatchEntry
	for rows.Next() {
		var e WatchEntry
		var last sql.NullString
		if err := rows.Scan(&e.RoomID, &e.RoomName, &e.IntervalDays, &last); err != nil {
			return nil, err
		}
		e.LastCatchUp = last.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkCaughtUp advances a room's catch-up date after a successful
// auto-save.
func (db *DB) MarkCaughtUp(roomID chatwork.RoomID, date string) error {
	_, err := db.Exec(`UPDATE watch_rooms SET last_catch_up = ? WHERE room_id = ?`, date, roomID)
	return err
}
