package api

import (
	"net/http"

	"cwlogd/internal/store"
)

// LogService exposes the saved fetch history, most recent first.
type LogService struct {
	db *store.DB
}

// NewLogService creates a new log service.
func NewLogService(db *store.DB) *LogService {
	return &LogService{db: db}
}

// Register mounts the service routes on mux.
func (s *LogService) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/logs", s.handleList)
}

type logEntryResponse struct {
	ID         string `json:"id"`
	RoomID     string `json:"roomId"`
	RoomName   string `json:"roomName"`
	StartDate  string `json:"startDate"`
	EndDate    string `json:"endDate"`
	Content    string `json:"content"`
	Count      int    `json:"count"`
	SavedAt    int64  `json:"savedAt"`
	IsAutoSave bool   `json:"isAutoSave"`
}

func (s *LogService) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}
	entries, err := s.db.ListLogs()
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]logEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, logEntryResponse{
			ID:         e.ID,
			RoomID:     e.RoomID.String(),
			RoomName:   e.RoomName,
			StartDate:  e.StartDate,
			EndDate:    e.EndDate,
			Content:    e.Content,
			Count:      e.MessageCount,
			SavedAt:    e.SavedAt,
			IsAutoSave: e.IsAutoSave,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
