package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Marker-bit/mrkrbt-chat/internal/chat"
)

// Status tracks where a session is in its turn lifecycle.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSubmitted Status = "submitted"
	StatusStreaming Status = "streaming"
	StatusReady     Status = "ready"
	StatusError     Status = "error"
)

// Session holds the optimistic local view of one chat: the message list is
// updated before the server confirms, then reconciled from the stream.
type Session struct {
	ChatID   uuid.UUID
	Messages []chat.Message
	Status   Status
	Err      error

	Prefs Prefs

	client *Client

	// OnEvent, when set, observes every stream event as it arrives.
	OnEvent func(ev chat.TurnEvent)
}

func (c *Client) NewSession(prefs Prefs) *Session {
	return &Session{
		ChatID: uuid.New(),
		Status: StatusIdle,
		Prefs:  prefs,
		client: c,
	}
}

// ResumeSession wraps an existing chat fetched from the server.
func (c *Client) ResumeSession(ch *chat.Chat, prefs Prefs) *Session {
	status := StatusReady
	if ch.State == chat.StateLoading {
		status = StatusSubmitted
	}
	return &Session{
		ChatID:   ch.ID,
		Messages: append([]chat.Message{}, ch.Messages...),
		Status:   status,
		Prefs:    prefs,
		client:   c,
	}
}

type sendTurnReq struct {
	ChatID         string      `json:"chat_id"`
	MessageID      string      `json:"message_id,omitempty"`
	Parts          []chat.Part `json:"parts"`
	Model          string      `json:"model"`
	Effort         string      `json:"effort,omitempty"`
	Visibility     string      `json:"visibility,omitempty"`
	WebSearch      bool        `json:"web_search,omitempty"`
	RetryMessageID string      `json:"retry_message_id,omitempty"`
}

// Send submits a new user message and consumes the whole response stream
// before returning. Stream contents are visible through OnEvent and, once
// done, in Messages.
func (s *Session) Send(ctx context.Context, text string) error {
	msg := chat.Message{
		ID:    uuid.New(),
		Role:  "user",
		Parts: []chat.Part{{Type: chat.PartText, Text: text}},
	}
	return s.submit(ctx, msg, nil)
}

// EditMessage rewrites an earlier user message. Everything from that
// message on is discarded and the turn replays with the new text.
func (s *Session) EditMessage(ctx context.Context, messageID uuid.UUID, text string) error {
	idx := s.indexOf(messageID)
	if idx < 0 {
		return errors.New("message not in session")
	}

	s.Messages = s.Messages[:idx]
	msg := chat.Message{
		ID:    messageID,
		Role:  "user",
		Parts: []chat.Part{{Type: chat.PartText, Text: text}},
	}
	return s.submit(ctx, msg, &messageID)
}

// Retry replays the turn from the given user message unchanged.
func (s *Session) Retry(ctx context.Context, messageID uuid.UUID) error {
	idx := s.indexOf(messageID)
	if idx < 0 {
		return errors.New("message not in session")
	}
	msg := s.Messages[idx]
	if msg.Role != "user" {
		return errors.New("can only retry from a user message")
	}

	s.Messages = s.Messages[:idx]
	return s.submit(ctx, msg, &messageID)
}

// Branch forks this session through the given message into a new session.
func (s *Session) Branch(ctx context.Context, messageID uuid.UUID) (*Session, error) {
	fork, err := s.client.Branch(ctx, s.ChatID, messageID)
	if err != nil {
		return nil, err
	}
	return s.client.ResumeSession(fork, s.Prefs), nil
}

func (s *Session) indexOf(messageID uuid.UUID) int {
	for i, m := range s.Messages {
		if m.ID == messageID {
			return i
		}
	}
	return -1
}

func (s *Session) submit(ctx context.Context, msg chat.Message, retryID *uuid.UUID) error {
	s.Status = StatusSubmitted
	s.Err = nil
	s.Messages = append(s.Messages, msg)

	body := sendTurnReq{
		ChatID:     s.ChatID.String(),
		MessageID:  msg.ID.String(),
		Parts:      msg.Parts,
		Model:      s.Prefs.Model,
		Effort:     s.Prefs.Effort,
		Visibility: s.Prefs.Visibility,
		WebSearch:  s.Prefs.WebSearch,
	}
	if retryID != nil {
		body.RetryMessageID = retryID.String()
	}

	req, err := s.client.newRequest(ctx, http.MethodPost, "/chat", body)
	if err != nil {
		return s.fail(err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.HTTP.Do(req)
	if err != nil {
		return s.fail(err)
	}
	defer resp.Body.Close()

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		// validation error before streaming started
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return s.fail(fmt.Errorf("unexpected response: %w", err))
		}
		return s.fail(&APIError{HTTPStatus: resp.StatusCode, Code: env.Code, Message: env.Message})
	}

	return s.consume(resp)
}

func (s *Session) fail(err error) error {
	s.Status = StatusError
	s.Err = err
	return err
}

// consume reads the SSE stream, building the assistant message locally from
// the same deltas the server persisted.
func (s *Session) consume(resp *http.Response) error {
	assistant := chat.Message{
		ID:    uuid.Nil,
		Role:  "assistant",
		Model: s.Prefs.Model,
	}
	var text, reasoning strings.Builder
	var toolParts []chat.Part

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" {
			continue
		}

		var ev struct {
			Type      string     `json:"type"`
			Delta     string     `json:"delta,omitempty"`
			Tool      *chat.Part `json:"tool,omitempty"`
			Message   string     `json:"message,omitempty"`
			MessageID string     `json:"message_id,omitempty"`
		}
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			continue
		}

		switch ev.Type {
		case "text":
			s.Status = StatusStreaming
			text.WriteString(ev.Delta)
		case "reasoning":
			s.Status = StatusStreaming
			reasoning.WriteString(ev.Delta)
		case "tool":
			s.Status = StatusStreaming
			if ev.Tool != nil {
				toolParts = append(toolParts, *ev.Tool)
			}
		case "ping":
			// keepalive only
		case "error":
			return s.fail(errors.New(ev.Message))
		case "done":
			if id, err := uuid.Parse(ev.MessageID); err == nil {
				assistant.ID = id
			}
			if reasoning.Len() > 0 {
				assistant.Parts = append(assistant.Parts, chat.Part{Type: chat.PartReasoning, Text: reasoning.String()})
			}
			assistant.Parts = append(assistant.Parts, toolParts...)
			assistant.Parts = append(assistant.Parts, chat.Part{Type: chat.PartText, Text: text.String()})
			s.Messages = append(s.Messages, assistant)
			s.Status = StatusReady
			return nil
		}

		if s.OnEvent != nil && (ev.Type == "text" || ev.Type == "reasoning" || ev.Type == "tool") {
			s.OnEvent(chat.TurnEvent{Type: ev.Type, Delta: ev.Delta, Tool: ev.Tool})
		}
	}
	if err := sc.Err(); err != nil {
		return s.fail(err)
	}
	return s.fail(errors.New("stream ended without done event"))
}

// WaitReady polls the status endpoint until the server-side state leaves
// loading. Used after a dropped stream to know when to refetch.
func (s *Session) WaitReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		state, err := s.client.ChatState(ctx, s.ChatID)
		if err != nil {
			return err
		}
		if state == chat.StateComplete {
			s.Status = StatusReady
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Refresh replaces the local message list with the server's copy.
func (s *Session) Refresh(ctx context.Context) error {
	ch, err := s.client.GetChat(ctx, s.ChatID)
	if err != nil {
		return err
	}
	s.Messages = append([]chat.Message{}, ch.Messages...)
	if ch.State == chat.StateComplete {
		s.Status = StatusReady
	}
	return nil
}
