package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"cwlogd/internal/chatwork"
	"cwlogd/internal/common"
	"cwlogd/internal/scheduler"
	"cwlogd/internal/store"
)

// PassRunner is the scheduler surface the watch service needs.
type PassRunner interface {
	RunPass(ctx context.Context) ([]scheduler.Outcome, error)
}

// WatchService manages the auto-save watch list and exposes a manual
// trigger for the scheduling pass.
type WatchService struct {
	db              *store.DB
	runner          PassRunner
	logger          *zap.Logger
	watchCap        int
	defaultInterval int
}

// NewWatchService creates a new watch service.
func NewWatchService(db *store.DB, runner PassRunner, logger *zap.Logger, watchCap, defaultInterval int) *WatchService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WatchService{
		db:              db,
		runner:          runner,
		logger:          logger,
		watchCap:        watchCap,
		defaultInterval: defaultInterval,
	}
}

// Register mounts the service routes on mux.
func (s *WatchService) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/autosave/rooms", s.handleRooms)
	mux.HandleFunc("/api/autosave/run", s.handleRun)
}

type watchEntryResponse struct {
	RoomID          string `json:"roomId"`
	RoomName        string `json:"roomName"`
	IntervalDays    int    `json:"intervalDays"`
	LastCatchUpDate string `json:"lastCatchUpDate,omitempty"`
}

type toggleRequest struct {
	RoomID       string `json:"roomId"`
	RoomName     string `json:"roomName"`
	IntervalDays int    `json:"intervalDays"`
}

type toggleResponse struct {
	Enabled  bool `json:"enabled"`
	Watching int  `json:"watching"`
	Limit    int  `json:"limit"`
}

func (s *WatchService) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleList(w, r)
	case http.MethodPost:
		s.handleToggle(w, r)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
	}
}

func (s *WatchService) handleList(w http.ResponseWriter, _ *http.Request) {
	entries, err := s.db.ListWatches()
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]watchEntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, watchEntryResponse{
			RoomID:          e.RoomID.String(),
			RoomName:        e.RoomName,
			IntervalDays:    e.IntervalDays,
			LastCatchUpDate: e.LastCatchUp,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleToggle flips auto-save for a room: off if currently watched
// (dropping catch-up progress entirely), on otherwise.
func (s *WatchService) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	roomID := chatwork.RoomID(strings.TrimSpace(req.RoomID))
	if roomID == "" {
		writeError(w, fmt.Errorf("%w: roomId is required", common.ErrValidation))
		return
	}

	existing, err := s.db.GetWatch(roomID)
	if err != nil {
		writeError(w, err)
		return
	}

	if existing != nil {
		if err := s.db.RemoveWatch(roomID); err != nil {
			writeError(w, err)
			return
		}
	} else {
		interval := req.IntervalDays
		if interval <= 0 {
			interval = s.defaultInterval
		}
		entry := store.WatchEntry{
			RoomID:       roomID,
			RoomName:     req.RoomName,
			IntervalDays: interval,
		}
		if err := s.db.AddWatch(entry, s.watchCap); err != nil {
			writeError(w, err)
			return
		}
	}

	entries, err := s.db.ListWatches()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{
		Enabled:  existing == nil,
		Watching: len(entries),
		Limit:    s.watchCap,
	})
}

type outcomeResponse struct {
	RoomID   string `json:"roomId"`
	RoomName string `json:"roomName"`
	Count    int    `json:"count"`
	Error    string `json:"error,omitempty"`
}

func (s *WatchService) handleRun(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	outcomes, err := s.runner.RunPass(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	resp := make([]outcomeResponse, 0, len(outcomes))
	for _, o := range outcomes {
		or := outcomeResponse{
			RoomID:   o.RoomID.String(),
			RoomName: o.RoomName,
			Count:    o.Count,
		}
		if o.Err != nil {
			or.Error = o.Err.Error()
		}
		resp = append(resp, or)
	}
	writeJSON(w, http.StatusOK, resp)
}
