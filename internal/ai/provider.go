package ai

import (
	"context"
	"encoding/json"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// Set on assistant messages that requested tool calls.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// Set on tool-result messages fed back to the model.
	ToolCallID string `json:"tool_call_id,omitempty"`
	ToolName   string `json:"tool_name,omitempty"`
}

type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type Request struct {
	System   string
	Messages []Message
	// Effort tunes reasoning depth on providers that support it: "", "low",
	// "medium", "high".
	Effort string
	Tools  []ToolDef
}

type EventType string

const (
	EventText      EventType = "text"
	EventReasoning EventType = "reasoning"
	EventToolCall  EventType = "tool_call"
)

type Event struct {
	Type     EventType
	Delta    string
	ToolCall *ToolCall
}

type Provider interface {
	Chat(ctx context.Context, req Request) (string, error)
}

// StreamProvider is an optional interface. Providers may implement streaming chat.
type StreamProvider interface {
	StreamChat(ctx context.Context, req Request) (<-chan Event, <-chan error)
}
