package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/Marker-bit/mrkrbt-chat/internal/chat"
)

func sseServer(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		var req sendTurnReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode turn request: %v", err)
		}
		if req.Model == "" {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"code":10009,"message":"unknown model","data":null}`)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: reasoning\ndata: {\"type\":\"reasoning\",\"delta\":\"hmm \"}\n\n")
		for _, r := range reply {
			fmt.Fprintf(w, "event: text\ndata: {\"type\":\"text\",\"delta\":%q}\n\n", string(r))
		}
		fmt.Fprintf(w, "event: done\ndata: {\"type\":\"done\",\"message_id\":%q}\n\n", uuid.New())
	})
	mux.HandleFunc("/chats/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"message":"ok","data":{"state":"complete"}}`)
	})
	return httptest.NewServer(mux)
}

func TestSession_SendTransitions(t *testing.T) {
	srv := sseServer(t, "hello")
	defer srv.Close()

	c := New(srv.URL, "token")
	sess := c.NewSession(Prefs{Model: "gpt-5.2"})

	if sess.Status != StatusIdle {
		t.Fatalf("new session must start idle, got %q", sess.Status)
	}

	var sawStream bool
	sess.OnEvent = func(ev chat.TurnEvent) {
		if sess.Status == StatusStreaming {
			sawStream = true
		}
	}

	if err := sess.Send(context.Background(), "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if sess.Status != StatusReady {
		t.Fatalf("expected ready, got %q", sess.Status)
	}
	if !sawStream {
		t.Fatalf("session never reported streaming")
	}

	if len(sess.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(sess.Messages))
	}
	assistant := sess.Messages[1]
	if assistant.Role != "assistant" || assistant.Text() != "hello" {
		t.Fatalf("unexpected assistant message: %+v", assistant)
	}
	if assistant.ID == uuid.Nil {
		t.Fatalf("assistant id must come from the done event")
	}
	// Reasoning precedes text in the assembled parts.
	if assistant.Parts[0].Type != chat.PartReasoning {
		t.Fatalf("expected reasoning part first, got %+v", assistant.Parts[0])
	}
}

func TestSession_ValidationErrorBeforeStream(t *testing.T) {
	srv := sseServer(t, "hello")
	defer srv.Close()

	c := New(srv.URL, "token")
	sess := c.NewSession(Prefs{}) // no model

	err := sess.Send(context.Background(), "hi")
	if err == nil {
		t.Fatalf("expected error")
	}
	var apiErr *APIError
	if !asAPIError(err, &apiErr) || apiErr.Code != 10009 {
		t.Fatalf("expected api error 10009, got %v", err)
	}
	if sess.Status != StatusError {
		t.Fatalf("expected error status, got %q", sess.Status)
	}
}

func asAPIError(err error, target **APIError) bool {
	e, ok := err.(*APIError)
	if ok {
		*target = e
	}
	return ok
}

func TestSession_EditTruncatesLocally(t *testing.T) {
	srv := sseServer(t, "redone")
	defer srv.Close()

	c := New(srv.URL, "token")
	sess := c.NewSession(Prefs{Model: "gpt-5.2"})

	if err := sess.Send(context.Background(), "first"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := sess.Send(context.Background(), "second"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(sess.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(sess.Messages))
	}

	editID := sess.Messages[2].ID // the "second" user message
	if err := sess.EditMessage(context.Background(), editID, "second, edited"); err != nil {
		t.Fatalf("edit: %v", err)
	}

	if len(sess.Messages) != 4 {
		t.Fatalf("edit must yield 4 messages, got %d", len(sess.Messages))
	}
	if sess.Messages[2].ID != editID || sess.Messages[2].Text() != "second, edited" {
		t.Fatalf("edited message must keep its id with new text: %+v", sess.Messages[2])
	}
	if sess.Messages[3].Text() != "redone" {
		t.Fatalf("expected fresh assistant reply, got %q", sess.Messages[3].Text())
	}
}

func TestSession_WaitReady(t *testing.T) {
	srv := sseServer(t, "x")
	defer srv.Close()

	c := New(srv.URL, "token")
	sess := c.NewSession(Prefs{Model: "gpt-5.2"})
	sess.Status = StatusSubmitted

	if err := sess.WaitReady(context.Background(), 0); err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	if sess.Status != StatusReady {
		t.Fatalf("expected ready, got %q", sess.Status)
	}
}

func TestCanPin(t *testing.T) {
	pinned := make([]ChatSummary, chat.PinLimit-1)
	if !CanPin(pinned) {
		t.Fatalf("room for one more pin")
	}
	pinned = append(pinned, ChatSummary{})
	if CanPin(pinned) {
		t.Fatalf("cap reached, must reject")
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.json")
	store := NewFileStore(path)

	// Missing file falls back to defaults.
	p, err := store.Load()
	if err != nil {
		t.Fatalf("load defaults: %v", err)
	}
	if p.Model == "" {
		t.Fatalf("defaults must name a model")
	}

	p.Model = "claude-sonnet-4-5"
	p.WebSearch = true
	if err := store.Save(p); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Model != "claude-sonnet-4-5" || !got.WebSearch {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}
