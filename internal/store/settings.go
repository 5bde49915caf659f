package store

import (
	"database/sql"
	"time"
)

// SettingAPIToken is the settings key under which the Chatwork API token
// is persisted. The name matches the key the browser UI historically used
// in local storage.
const SettingAPIToken = "chatworkApiToken"

// SetSetting stores a key/value pair, replacing any previous value.
func (db *DB) SetSetting(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetSetting returns the stored value for key, or "" when unset.
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}
