package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cwlogd/internal/bus"
	"cwlogd/internal/chatwork"
	"cwlogd/internal/common"
	"cwlogd/internal/fetch"
	"cwlogd/internal/scheduler"
	"cwlogd/internal/store"
)

const testToken = "valid-token"

func testDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// fakeUpstream mimics the Chatwork v2 API: a room listing plus a single
// newest page of messages per room.
func fakeUpstream(t *testing.T, messages map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-ChatWorkToken") != testToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/rooms" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"room_id": 101, "name": "General"}]`))
			return
		}
		for roomID, body := range messages {
			if r.URL.Path == "/rooms/"+roomID+"/messages" {
				if body == "" {
					w.WriteHeader(http.StatusNoContent)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(body))
				return
			}
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)
	return srv
}

type env struct {
	db  *store.DB
	mux *http.ServeMux
}

type fakeRunner struct {
	outcomes []scheduler.Outcome
	err      error
}

func (f *fakeRunner) RunPass(context.Context) ([]scheduler.Outcome, error) {
	return f.outcomes, f.err
}

func newEnv(t *testing.T, upstream *httptest.Server, runner PassRunner) *env {
	t.Helper()
	db := testDB(t)
	b := bus.New()
	client := chatwork.New(upstream.URL, 5*time.Second)
	fetcher := fetch.New(client, 30, 0, time.UTC, nil)
	if runner == nil {
		runner = &fakeRunner{}
	}

	mux := http.NewServeMux()
	NewRoomService(client, db, nil).Register(mux)
	NewMessageService(fetcher, db, b, nil, time.UTC, 50).Register(mux)
	NewWatchService(db, runner, nil, 10, 3).Register(mux)
	NewLogService(db).Register(mux)
	NewTokenService(db).Register(mux)
	return &env{db: db, mux: mux}
}

func (e *env) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeResp[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rec.Body.String())
	}
	return v
}

func msgJSON(id int, name, body string, sendTime int64) string {
	return fmt.Sprintf(`{"message_id": %d, "account": {"name": %q}, "body": %q, "send_time": %d}`, id, name, body, sendTime)
}

func ts(y int, m time.Month, d, hh, mm int) int64 {
	return time.Date(y, m, d, hh, mm, 0, 0, time.UTC).Unix()
}

func TestFetchMessagesEndToEnd(t *testing.T) {
	// Three messages on 05-01 and two on 05-03, served newest-first the
	// way the live API does, plus one outside the requested range.
	page := "[" + strings.Join([]string{
		msgJSON(6, "Taro", "out of range", ts(2024, 5, 7, 9, 0)),
		msgJSON(5, "Hanako", "m5", ts(2024, 5, 3, 15, 0)),
		msgJSON(4, "Taro", "m4", ts(2024, 5, 3, 9, 0)),
		msgJSON(3, "Hanako", "m3", ts(2024, 5, 1, 18, 0)),
		msgJSON(2, "Taro", "m2", ts(2024, 5, 1, 12, 0)),
		msgJSON(1, "Taro", "m1", ts(2024, 5, 1, 9, 0)),
	}, ",") + "]"
	upstream := fakeUpstream(t, map[string]string{"101": page})
	e := newEnv(t, upstream, nil)

	rec := e.do(t, http.MethodPost, "/api/chatwork/messages", map[string]string{
		"apiToken":  testToken,
		"roomId":    "101",
		"roomName":  "General",
		"startDate": "2024-05-01",
		"endDate":   "2024-05-03",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	resp := decodeResp[messagesResponse](t, rec)
	if resp.Count != 5 {
		t.Errorf("count = %d, want 5", resp.Count)
	}
	if resp.Truncated {
		t.Error("truncated = true for a 5-message fetch")
	}
	lines := strings.Split(resp.Messages, "\n")
	if len(lines) != 5 {
		t.Fatalf("got %d lines, want 5", len(lines))
	}
	for i, want := range []string{"m1", "m2", "m3", "m4", "m5"} {
		if !strings.HasSuffix(lines[i], want) {
			t.Errorf("line %d = %q, want suffix %q", i, lines[i], want)
		}
	}
	if !strings.HasPrefix(lines[0], "[2024/05/01 09:00] Taro:") {
		t.Errorf("line 0 = %q", lines[0])
	}

	// The fetch landed in the history as a manual save.
	logs, err := e.db.ListLogs()
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d logs, want 1", len(logs))
	}
	if logs[0].IsAutoSave {
		t.Error("manual fetch recorded as auto-save")
	}
	if logs[0].RoomName != "General" || logs[0].MessageCount != 5 {
		t.Errorf("log entry = %+v", logs[0])
	}
	if logs[0].StartDate != "2024-05-01" || logs[0].EndDate != "2024-05-03" {
		t.Errorf("log range = %s..%s", logs[0].StartDate, logs[0].EndDate)
	}
}

func TestFetchMessagesValidation(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	e := newEnv(t, upstream, nil)

	cases := []struct {
		name string
		body map[string]string
	}{
		{"missing token", map[string]string{"roomId": "101", "startDate": "2024-05-01", "endDate": "2024-05-03"}},
		{"missing room", map[string]string{"apiToken": testToken, "startDate": "2024-05-01", "endDate": "2024-05-03"}},
		{"missing dates", map[string]string{"apiToken": testToken, "roomId": "101"}},
		{"bad date format", map[string]string{"apiToken": testToken, "roomId": "101", "startDate": "05/01/2024", "endDate": "2024-05-03"}},
		{"inverted range", map[string]string{"apiToken": testToken, "roomId": "101", "startDate": "2024-05-03", "endDate": "2024-05-01"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := e.do(t, http.MethodPost, "/api/chatwork/messages", tc.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestFetchMessagesUpstreamAuthFailure(t *testing.T) {
	upstream := fakeUpstream(t, map[string]string{"101": "[]"})
	e := newEnv(t, upstream, nil)

	rec := e.do(t, http.MethodPost, "/api/chatwork/messages", map[string]string{
		"apiToken":  "wrong-token",
		"roomId":    "101",
		"startDate": "2024-05-01",
		"endDate":   "2024-05-03",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	// Failed fetches never enter the history.
	logs, err := e.db.ListLogs()
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 0 {
		t.Errorf("got %d logs after failed fetch, want 0", len(logs))
	}
}

func TestListRoomsPersistsToken(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	e := newEnv(t, upstream, nil)

	rec := e.do(t, http.MethodPost, "/api/chatwork/rooms", map[string]string{"apiToken": testToken})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	rooms := decodeResp[[]roomResponse](t, rec)
	if len(rooms) != 1 || rooms[0].RoomID != "101" || rooms[0].Name != "General" {
		t.Errorf("rooms = %+v", rooms)
	}

	stored, err := e.db.GetSetting(store.SettingAPIToken)
	if err != nil {
		t.Fatal(err)
	}
	if stored != testToken {
		t.Errorf("stored token = %q, want %q", stored, testToken)
	}
}

func TestListRoomsRejectsBadToken(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	e := newEnv(t, upstream, nil)

	rec := e.do(t, http.MethodPost, "/api/chatwork/rooms", map[string]string{"apiToken": "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	stored, err := e.db.GetSetting(store.SettingAPIToken)
	if err != nil {
		t.Fatal(err)
	}
	if stored != "" {
		t.Errorf("rejected token was persisted: %q", stored)
	}
}

func TestWatchToggle(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	e := newEnv(t, upstream, nil)

	// Toggle on.
	rec := e.do(t, http.MethodPost, "/api/autosave/rooms", map[string]any{
		"roomId": "101", "roomName": "General", "intervalDays": 5,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeResp[toggleResponse](t, rec)
	if !resp.Enabled || resp.Watching != 1 || resp.Limit != 10 {
		t.Errorf("toggle on = %+v", resp)
	}

	// Listing reflects it.
	rec = e.do(t, http.MethodGet, "/api/autosave/rooms", nil)
	entries := decodeResp[[]watchEntryResponse](t, rec)
	if len(entries) != 1 || entries[0].RoomID != "101" || entries[0].IntervalDays != 5 {
		t.Errorf("entries = %+v", entries)
	}

	// Toggle off.
	rec = e.do(t, http.MethodPost, "/api/autosave/rooms", map[string]any{"roomId": "101"})
	resp = decodeResp[toggleResponse](t, rec)
	if resp.Enabled || resp.Watching != 0 {
		t.Errorf("toggle off = %+v", resp)
	}
}

func TestWatchToggleDefaultInterval(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	e := newEnv(t, upstream, nil)

	rec := e.do(t, http.MethodPost, "/api/autosave/rooms", map[string]any{"roomId": "101"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	w, err := e.db.GetWatch("101")
	if err != nil {
		t.Fatal(err)
	}
	if w == nil || w.IntervalDays != 3 {
		t.Errorf("watch = %+v, want default interval 3", w)
	}
}

func TestWatchCapReturnsConflict(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	e := newEnv(t, upstream, nil)

	for i := 0; i < 10; i++ {
		rec := e.do(t, http.MethodPost, "/api/autosave/rooms", map[string]any{
			"roomId": fmt.Sprintf("room-%d", i),
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("toggle %d: status = %d", i, rec.Code)
		}
	}

	rec := e.do(t, http.MethodPost, "/api/autosave/rooms", map[string]any{"roomId": "room-10"})
	if rec.Code != http.StatusConflict {
		t.Errorf("11th toggle: status = %d, want 409", rec.Code)
	}
}

func TestRunPassEndpoint(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	runner := &fakeRunner{outcomes: []scheduler.Outcome{
		{RoomID: "101", RoomName: "General", Count: 7},
		{RoomID: "202", RoomName: "Dev", Err: fmt.Errorf("%w: status 500", common.ErrFetch)},
	}}
	e := newEnv(t, upstream, runner)

	rec := e.do(t, http.MethodPost, "/api/autosave/run", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeResp[[]outcomeResponse](t, rec)
	if len(resp) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(resp))
	}
	if resp[0].RoomID != "101" || resp[0].Count != 7 || resp[0].Error != "" {
		t.Errorf("outcome 0 = %+v", resp[0])
	}
	if resp[1].RoomID != "202" || resp[1].Error == "" {
		t.Errorf("outcome 1 = %+v", resp[1])
	}
}

func TestListLogsNewestFirst(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	e := newEnv(t, upstream, nil)

	for i := 0; i < 3; i++ {
		entry := store.LogEntry{
			ID:        fmt.Sprintf("log-%d", i),
			RoomID:    "101",
			RoomName:  "General",
			StartDate: "2024-05-01",
			EndDate:   "2024-05-03",
			SavedAt:   int64(1000 + i),
		}
		if err := e.db.AppendLog(entry, 50); err != nil {
			t.Fatal(err)
		}
	}

	rec := e.do(t, http.MethodGet, "/api/logs", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	logs := decodeResp[[]logEntryResponse](t, rec)
	if len(logs) != 3 {
		t.Fatalf("got %d logs, want 3", len(logs))
	}
	if logs[0].ID != "log-2" || logs[2].ID != "log-0" {
		t.Errorf("order = %s..%s, want log-2..log-0", logs[0].ID, logs[2].ID)
	}
}

func TestSaveToken(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	e := newEnv(t, upstream, nil)

	rec := e.do(t, http.MethodPut, "/api/token", map[string]string{"apiToken": "  spaced-token  "})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
	stored, err := e.db.GetSetting(store.SettingAPIToken)
	if err != nil {
		t.Fatal(err)
	}
	if stored != "spaced-token" {
		t.Errorf("stored = %q, want trimmed token", stored)
	}

	rec = e.do(t, http.MethodPut, "/api/token", map[string]string{"apiToken": ""})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty token: status = %d, want 400", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	e := newEnv(t, upstream, nil)

	for _, path := range []string{"/api/chatwork/rooms", "/api/chatwork/messages", "/api/autosave/run"} {
		rec := e.do(t, http.MethodGet, path, nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("GET %s: status = %d, want 405", path, rec.Code)
		}
	}
	rec := e.do(t, http.MethodDelete, "/api/logs", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("DELETE /api/logs: status = %d, want 405", rec.Code)
	}
}
