package api

import (
	"fmt"
	"net/http"
	"strings"

	"cwlogd/internal/common"
	"cwlogd/internal/store"
)

// TokenService stores the Chatwork API token so scheduled auto-save
// passes can authenticate without the UI being open.
type TokenService struct {
	db *store.DB
}

// NewTokenService creates a new token service.
func NewTokenService(db *store.DB) *TokenService {
	return &TokenService{db: db}
}

// Register mounts the service routes on mux.
func (s *TokenService) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/token", s.handleSave)
}

type tokenRequest struct {
	APIToken string `json:"apiToken"`
}

func (s *TokenService) handleSave(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}
	var req tokenRequest
	if !decodeBody(w, r, &req) {
		return
	}
	token := strings.TrimSpace(req.APIToken)
	if token == "" {
		writeError(w, fmt.Errorf("%w: apiToken is required", common.ErrValidation))
		return
	}
	if err := s.db.SetSetting(store.SettingAPIToken, token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
