// Package api holds the REST collaborators the sync core consumes:
// paginated message history, the room list, and membership triggers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/haeun9634/chatsync/internal/chat"
	"github.com/haeun9634/chatsync/internal/proto"
)

// Client talks to the chat backend with a bearer credential.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zerolog.Logger
}

// NewClient builds a Client for baseURL.
func NewClient(baseURL, token string, logger *zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     logger,
	}
}

// FetchMessages loads one history page for a room. The response order is
// not trusted; the timeline store sorts on merge.
func (c *Client) FetchMessages(ctx context.Context, roomID string, page, size int) ([]chat.Message, error) {
	endpoint := fmt.Sprintf("%s/chat/rooms/%s/messages?page=%d&size=%d",
		c.baseURL, url.PathEscape(roomID), page, size)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	raws, err := unwrapList(body)
	if err != nil {
		return nil, fmt.Errorf("%w: messages: %v", chat.ErrFetch, err)
	}

	msgs := make([]chat.Message, 0, len(raws))
	for _, raw := range raws {
		msg, err := proto.DecodeRoomMessage(roomID, raw)
		if err != nil {
			// One bad record should not sink the page.
			if c.log != nil {
				c.log.Warn().Err(err).Str("room", roomID).Msg("skipping malformed history record")
			}
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// FetchRooms loads the authenticated user's room digests.
func (c *Client) FetchRooms(ctx context.Context) ([]chat.RoomSummary, error) {
	body, err := c.get(ctx, c.baseURL+"/chat/rooms/users")
	if err != nil {
		return nil, err
	}

	raws, err := unwrapList(body)
	if err != nil {
		return nil, fmt.Errorf("%w: rooms: %v", chat.ErrFetch, err)
	}

	list, err := json.Marshal(raws)
	if err != nil {
		return nil, fmt.Errorf("%w: rooms: %v", chat.ErrFetch, err)
	}
	rooms, err := proto.DecodeDigests(list)
	if err != nil {
		return nil, fmt.Errorf("%w: rooms: %v", chat.ErrFetch, err)
	}
	return rooms, nil
}

// CreateRoom creates a room and returns nothing; the creator learns of it
// through the room-list update.
func (c *Client) CreateRoom(ctx context.Context, name string) error {
	endpoint := c.baseURL + "/chat/rooms?name=" + url.QueryEscape(name)
	return c.send(ctx, http.MethodPost, endpoint)
}

// InviteUser adds a user to a room. Fire-and-forget: the ENTER push event
// follows from the server.
func (c *Client) InviteUser(ctx context.Context, roomID, userID string) error {
	endpoint := fmt.Sprintf("%s/chat/rooms/%s/users?userId=%s",
		c.baseURL, url.PathEscape(roomID), url.QueryEscape(userID))
	return c.send(ctx, http.MethodPost, endpoint)
}

// LeaveRoom removes the authenticated user from a room.
func (c *Client) LeaveRoom(ctx context.Context, roomID string) error {
	endpoint := fmt.Sprintf("%s/chat/rooms/%s/users", c.baseURL, url.PathEscape(roomID))
	return c.send(ctx, http.MethodDelete, endpoint)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrFetch, err)
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", chat.ErrFetch, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chat.ErrFetch, err)
	}
	return body, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string) error {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: unexpected status %d", method, endpoint, resp.StatusCode)
	}
	return nil
}

func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
}

// unwrapList accepts both response shapes seen across backend revisions:
// a bare JSON array or an object with a "data" array.
func unwrapList(body []byte) ([]json.RawMessage, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err == nil {
		return raws, nil
	}
	var envelope struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	return envelope.Data, nil
}
