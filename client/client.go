// Package client is a Go SDK for the mrkrbt.chat HTTP API. It drives the
// same endpoints the web frontend uses: JSON for CRUD, SSE for chat turns.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/Marker-bit/mrkrbt-chat/internal/chat"
	"github.com/Marker-bit/mrkrbt-chat/internal/keys"
)

type Client struct {
	BaseURL string
	Token   string

	// Keys is sent as the api_keys cookie with every request, mirroring
	// what the browser does.
	Keys keys.Set

	HTTP *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		Keys:    keys.Set{},
		HTTP:    &http.Client{},
	}
}

// envelope is the uniform server response wrapper.
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIError is a non-zero business code returned by the server.
type APIError struct {
	HTTPStatus int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (http %d): %s", e.Code, e.HTTPStatus, e.Message)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if len(c.Keys) > 0 {
		encoded, err := keys.Encode(c.Keys)
		if err != nil {
			return nil, err
		}
		req.AddCookie(&http.Cookie{Name: keys.CookieName, Value: encoded})
	}
	return req, nil
}

// call runs one JSON round-trip and unwraps the envelope into out.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if env.Code != 0 {
		return &APIError{HTTPStatus: resp.StatusCode, Code: env.Code, Message: env.Message}
	}
	if out != nil {
		return json.Unmarshal(env.Data, out)
	}
	return nil
}

type ChatSummary struct {
	ID         uuid.UUID       `json:"id"`
	Title      string          `json:"title"`
	State      chat.State      `json:"state"`
	Visibility chat.Visibility `json:"visibility"`
	Pinned     bool            `json:"pinned"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type HistoryPage struct {
	Pinned  []ChatSummary `json:"pinned"`
	Chats   []ChatSummary `json:"chats"`
	HasMore bool          `json:"has_more"`
}

// History fetches one sidebar page. Pass uuid.Nil cursors for the first page.
func (c *Client) History(ctx context.Context, limit int, startingAfter, endingBefore uuid.UUID) (*HistoryPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if startingAfter != uuid.Nil {
		q.Set("starting_after", startingAfter.String())
	}
	if endingBefore != uuid.Nil {
		q.Set("ending_before", endingBefore.String())
	}
	path := "/chats"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var page HistoryPage
	if err := c.call(ctx, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *Client) SearchChats(ctx context.Context, query string) ([]ChatSummary, error) {
	var out struct {
		Chats []ChatSummary `json:"chats"`
	}
	path := "/chats/search?q=" + url.QueryEscape(query)
	if err := c.call(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Chats, nil
}

func (c *Client) GetChat(ctx context.Context, chatID uuid.UUID) (*chat.Chat, error) {
	var out struct {
		Chat *chat.Chat `json:"chat"`
	}
	if err := c.call(ctx, http.MethodGet, "/chats/"+chatID.String(), nil, &out); err != nil {
		return nil, err
	}
	return out.Chat, nil
}

func (c *Client) DeleteChat(ctx context.Context, chatID uuid.UUID) error {
	return c.call(ctx, http.MethodDelete, "/chats/"+chatID.String(), nil, nil)
}

type chatPatchReq struct {
	Title      *string `json:"title,omitempty"`
	Visibility *string `json:"visibility,omitempty"`
	Pinned     *bool   `json:"pinned,omitempty"`
}

func (c *Client) Rename(ctx context.Context, chatID uuid.UUID, title string) error {
	return c.call(ctx, http.MethodPatch, "/chats/"+chatID.String(), chatPatchReq{Title: &title}, nil)
}

func (c *Client) SetVisibility(ctx context.Context, chatID uuid.UUID, v chat.Visibility) error {
	s := string(v)
	return c.call(ctx, http.MethodPatch, "/chats/"+chatID.String(), chatPatchReq{Visibility: &s}, nil)
}

// SetPinned flips the pin flag. CanPin offers a cheap pre-check against the
// server-enforced cap.
func (c *Client) SetPinned(ctx context.Context, chatID uuid.UUID, pinned bool) error {
	return c.call(ctx, http.MethodPatch, "/chats/"+chatID.String(), chatPatchReq{Pinned: &pinned}, nil)
}

// CanPin reports whether one more chat fits under the pin cap.
func CanPin(pinned []ChatSummary) bool {
	return len(pinned) < chat.PinLimit
}

// Branch forks a chat through the given message into a new private chat.
func (c *Client) Branch(ctx context.Context, chatID, messageID uuid.UUID) (*chat.Chat, error) {
	var out struct {
		Chat *chat.Chat `json:"chat"`
	}
	body := map[string]string{"message_id": messageID.String()}
	if err := c.call(ctx, http.MethodPost, "/chats/"+chatID.String()+"/branch", body, &out); err != nil {
		return nil, err
	}
	return out.Chat, nil
}

// ChatState polls the lifecycle state of a chat.
func (c *Client) ChatState(ctx context.Context, chatID uuid.UUID) (chat.State, error) {
	var out struct {
		State chat.State `json:"state"`
	}
	if err := c.call(ctx, http.MethodGet, "/chats/"+chatID.String()+"/status", nil, &out); err != nil {
		return "", err
	}
	return out.State, nil
}
