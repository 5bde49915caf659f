// Package chatwork implements the HTTP client for the Chatwork REST API.
//
// The messages endpoint returns only its newest page (at most PageCap
// entries) and accepts no server-side date filtering; date-range coverage
// is the caller's problem. Rate limiting is likewise a caller-side
// contract: this client never sleeps between requests.
package chatwork

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"cwlogd/internal/common"
)

// PageCap is the fixed maximum number of messages the upstream returns
// per call, independent of the requested range.
const PageCap = 100

const tokenHeader = "X-ChatWorkToken"

// Client issues authenticated calls against the Chatwork v2 API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given API base URL (e.g.
// "https://api.chatwork.com/v2") with the given request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// ListRooms returns all rooms visible to the token. A non-2xx response is
// reported as common.ErrAuth, since an invalid token is by far the common
// cause on this endpoint.
func (c *Client) ListRooms(ctx context.Context, token string) ([]Room, error) {
	body, status, err := c.get(ctx, token, "/rooms")
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: rooms endpoint returned %d", common.ErrAuth, status)
	}

	var raw []struct {
		RoomID json.Number `json:"room_id"`
		Name   string      `json:"name"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode rooms: %v", common.ErrFetch, err)
	}

	rooms := make([]Room, 0, len(raw))
	for _, r := range raw {
		rooms = append(rooms, Room{ID: RoomID(r.RoomID.String()), Name: r.Name})
	}
	return rooms, nil
}

// ListMessages returns the newest page of messages for a room via the
// force-reload listing. A 204 means the room has no messages to report.
func (c *Client) ListMessages(ctx context.Context, token string, roomID RoomID) ([]Message, error) {
	body, status, err := c.get(ctx, token, fmt.Sprintf("/rooms/%s/messages?force=1", roomID))
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, nil
	}
	if status < 200 || status > 299 {
		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			return nil, fmt.Errorf("%w: messages endpoint returned %d", common.ErrAuth, status)
		}
		return nil, fmt.Errorf("%w: messages endpoint returned %d", common.ErrFetch, status)
	}

	var raw []struct {
		MessageID json.Number `json:"message_id"`
		Account   struct {
			Name string `json:"name"`
		} `json:"account"`
		Body     string `json:"body"`
		SendTime int64  `json:"send_time"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode messages: %v", common.ErrFetch, err)
	}

	msgs := make([]Message, 0, len(raw))
	for _, m := range raw {
		msgs = append(msgs, Message{
			ID:       m.MessageID.String(),
			SendTime: m.SendTime,
			Sender:   m.Account.Name,
			Body:     m.Body,
		})
	}
	return msgs, nil
}

func (c *Client) get(ctx context.Context, token, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: build request: %v", common.ErrNetwork, err)
	}
	req.Header.Set(tokenHeader, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", common.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: read body: %v", common.ErrNetwork, err)
	}
	return body, resp.StatusCode, nil
}
