package store

import "cwlogd/internal/chatwork"

// WatchEntry is an auto-save subscription: save this room's recent
// history every IntervalDays. RoomName is a denormalized copy taken at
// toggle time and may go stale if the room is later renamed.
type WatchEntry struct {
	RoomID       chatwork.RoomID
	RoomName     string
	IntervalDays int
	LastCatchUp  string // "YYYY-MM-DD"; empty until the first catch-up ran
}

// LogEntry is one saved fetch result, manual or automatic.
type LogEntry struct {
	ID           string
	RoomID       chatwork.RoomID
	RoomName     string
	StartDate    string // "YYYY-MM-DD"
	EndDate      string // "YYYY-MM-DD"
	Content      string
	MessageCount int
	SavedAt      int64 // unix milliseconds
	IsAutoSave   bool
}
