package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cwlogd/internal/bus"
	"cwlogd/internal/chatwork"
	"cwlogd/internal/common"
	"cwlogd/internal/fetch"
	"cwlogd/internal/store"
)

const dateLayout = "2006-01-02"

// RangeFetcher is the fetch surface the message service needs.
type RangeFetcher interface {
	FetchRange(ctx context.Context, token string, roomID chatwork.RoomID, start, end time.Time) (*fetch.Result, error)
}

// MessageService serves manual transcript fetches. Every successful fetch
// is also recorded in the saved-log history.
type MessageService struct {
	fetcher RangeFetcher
	db      *store.DB
	bus     *bus.Bus
	logger  *zap.Logger
	loc     *time.Location
	logCap  int
}

// NewMessageService creates a new message service.
func NewMessageService(fetcher RangeFetcher, db *store.DB, b *bus.Bus, logger *zap.Logger, loc *time.Location, logCap int) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &MessageService{fetcher: fetcher, db: db, bus: b, logger: logger, loc: loc, logCap: logCap}
}

// Register mounts the service routes on mux.
func (s *MessageService) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/chatwork/messages", s.handleFetch)
}

type messagesRequest struct {
	APIToken  string `json:"apiToken"`
	RoomID    string `json:"roomId"`
	RoomName  string `json:"roomName"`
	StartDate string `json:"startDate"`
	EndDate   string `json:"endDate"`
}

type messagesResponse struct {
	Messages  string `json:"messages"`
	Count     int    `json:"count"`
	Truncated bool   `json:"truncated"`
}

func (s *MessageService) handleFetch(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req messagesRequest
	if !decodeBody(w, r, &req) {
		return
	}

	token := strings.TrimSpace(req.APIToken)
	roomID := chatwork.RoomID(strings.TrimSpace(req.RoomID))
	if token == "" || roomID == "" || req.StartDate == "" || req.EndDate == "" {
		writeError(w, fmt.Errorf("%w: apiToken, roomId, startDate and endDate are all required", common.ErrValidation))
		return
	}

	start, err := time.ParseInLocation(dateLayout, req.StartDate, s.loc)
	if err != nil {
		writeError(w, fmt.Errorf("%w: startDate must be YYYY-MM-DD", common.ErrValidation))
		return
	}
	end, err := time.ParseInLocation(dateLayout, req.EndDate, s.loc)
	if err != nil {
		writeError(w, fmt.Errorf("%w: endDate must be YYYY-MM-DD", common.ErrValidation))
		return
	}

	res, err := s.fetcher.FetchRange(r.Context(), token, roomID, start, end)
	if err != nil {
		writeError(w, err)
		return
	}

	roomName := req.RoomName
	if roomName == "" {
		roomName = "Unknown"
	}
	entry := store.LogEntry{
		ID:           uuid.New().String(),
		RoomID:       roomID,
		RoomName:     roomName,
		StartDate:    req.StartDate,
		EndDate:      req.EndDate,
		Content:      res.Text,
		MessageCount: res.Count,
		SavedAt:      time.Now().UnixMilli(),
		IsAutoSave:   false,
	}
	if err := s.db.AppendLog(entry, s.logCap); err != nil {
		s.logger.Error("failed to record fetch in saved logs", zap.Error(err))
	} else {
		s.bus.Publish(bus.Event{
			Kind: "log.appended",
			At:   time.Now(),
			Payload: map[string]string{
				"room_id": roomID.String(),
				"log_id":  entry.ID,
			},
		})
	}

	writeJSON(w, http.StatusOK, messagesResponse{
		Messages:  res.Text,
		Count:     res.Count,
		Truncated: res.Truncated,
	})
}
