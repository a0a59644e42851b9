package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func sseHandler(t *testing.T, lines []string) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, l := range lines {
			fmt.Fprintf(w, "data: %s\n\n", l)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func collect(t *testing.T, events <-chan Event, errs <-chan error) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	if err := <-errs; err != nil {
		t.Fatalf("stream error: %v", err)
	}
	return out
}

func TestOpenAIStreamChat_TextAndReasoning(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"choices":[{"delta":{"reasoning":"thinking... "}}]}`,
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "gpt-test", "")
	evCh, errCh := p.StreamChat(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	events := collect(t, evCh, errCh)

	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d: %+v", len(events), events)
	}
	if events[0].Type != EventReasoning || events[0].Delta != "thinking... " {
		t.Fatalf("unexpected first event: %+v", events[0])
	}
	text := ""
	for _, ev := range events[1:] {
		if ev.Type != EventText {
			t.Fatalf("expected text event, got %+v", ev)
		}
		text += ev.Delta
	}
	if text != "Hello" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestOpenAIStreamChat_AssemblesSplitToolCall(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"web_search","arguments":"{\"qu"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"ery\":\"go\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "gpt-test", "")
	evCh, errCh := p.StreamChat(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	events := collect(t, evCh, errCh)

	if len(events) != 1 {
		t.Fatalf("expected 1 tool call event, got %d", len(events))
	}
	tc := events[0].ToolCall
	if tc == nil || events[0].Type != EventToolCall {
		t.Fatalf("expected tool call event, got %+v", events[0])
	}
	if tc.ID != "call_1" || tc.Name != "web_search" {
		t.Fatalf("unexpected tool call: %+v", tc)
	}
	var args struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(tc.Arguments, &args); err != nil {
		t.Fatalf("arguments did not reassemble into valid json: %v", err)
	}
	if args.Query != "go" {
		t.Fatalf("unexpected query %q", args.Query)
	}
}

func TestOpenAIStreamChat_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "gpt-test", "")
	events, errs := p.StreamChat(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	for range events {
	}
	if err := <-errs; err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}

func TestOpenAIChat_NonStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body oaChatReq
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if body.Stream {
			t.Errorf("Chat must not request streaming")
		}
		if body.Messages[0].Role != "system" {
			t.Errorf("system prompt must lead, got %q", body.Messages[0].Role)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"Short title"}}]}`)
	}))
	defer srv.Close()

	p := NewOpenAIProvider(srv.URL, "sk-test", "gpt-test", "")
	out, err := p.Chat(context.Background(), Request{
		System:   "be brief",
		Messages: []Message{{Role: "user", Content: "title please"}},
	})
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if out != "Short title" {
		t.Fatalf("unexpected reply %q", out)
	}
}

func TestOpenAIChat_MissingKey(t *testing.T) {
	p := NewOpenAIProvider("http://unused", "", "gpt-test", "")
	if _, err := p.Chat(context.Background(), Request{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}

func TestRegistry_Lookup(t *testing.T) {
	reg := NewRegistry()
	reg.Register("Fake", func(cfg Config) Provider {
		return NewOllamaProvider("http://localhost", cfg.Model)
	})

	if _, err := reg.Get("fake", Config{Model: "m"}); err != nil {
		t.Fatalf("lookup should be case-insensitive: %v", err)
	}
	if _, err := reg.Get("missing", Config{}); err == nil {
		t.Fatalf("expected error for unknown provider")
	}
}
