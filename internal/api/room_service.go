package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"cwlogd/internal/chatwork"
	"cwlogd/internal/common"
	"cwlogd/internal/store"
)

// RoomLister is the upstream surface the room service needs.
type RoomLister interface {
	ListRooms(ctx context.Context, token string) ([]chatwork.Room, error)
}

// RoomService lists the rooms visible to an API token and remembers the
// token for the auto-save scheduler once it has proven valid.
type RoomService struct {
	client RoomLister
	db     *store.DB
	logger *zap.Logger
}

// NewRoomService creates a new room service.
func NewRoomService(client RoomLister, db *store.DB, logger *zap.Logger) *RoomService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoomService{client: client, db: db, logger: logger}
}

// Register mounts the service routes on mux.
func (s *RoomService) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/chatwork/rooms", s.handleList)
}

type roomsRequest struct {
	APIToken string `json:"apiToken"`
}

type roomResponse struct {
	RoomID string `json:"room_id"`
	Name   string `json:"name"`
}

func (s *RoomService) handleList(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}
	var req roomsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token := strings.TrimSpace(req.APIToken)
	if token == "" {
		writeError(w, fmt.Errorf("%w: apiToken is required", common.ErrValidation))
		return
	}

	rooms, err := s.client.ListRooms(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}

	// The token worked; keep it for scheduled passes.
	if err := s.db.SetSetting(store.SettingAPIToken, token); err != nil {
		s.logger.Warn("failed to persist API token", zap.Error(err))
	}

	resp := make([]roomResponse, 0, len(rooms))
	for _, room := range rooms {
		resp = append(resp, roomResponse{RoomID: room.ID.String(), Name: room.Name})
	}
	writeJSON(w, http.StatusOK, resp)
}
