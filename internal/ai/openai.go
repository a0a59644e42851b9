package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAIProvider speaks the OpenAI-compatible chat completions API. It also
// serves OpenRouter (and any other compatible gateway) via BaseURL.
type OpenAIProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Effort  string
	SiteURL string
	AppName string
	Client  *http.Client
}

func NewOpenAIProvider(baseURL, apiKey, model, effort string) *OpenAIProvider {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Effort:  effort,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type oaMsg struct {
	Role       string       `json:"role"`
	Content    string       `json:"content"`
	ToolCalls  []oaToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
}

type oaToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type oaTool struct {
	Type     string `json:"type"`
	Function struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		Parameters  json.RawMessage `json:"parameters"`
	} `json:"function"`
}

type oaChatReq struct {
	Model           string   `json:"model"`
	Messages        []oaMsg  `json:"messages"`
	Stream          bool     `json:"stream"`
	Tools           []oaTool `json:"tools,omitempty"`
	ReasoningEffort string   `json:"reasoning_effort,omitempty"`
}

type oaChatResp struct {
	Choices []struct {
		Message oaMsg `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type oaStreamResp struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
			ToolCalls []struct {
				Index    int    `json:"index"`
				ID       string `json:"id"`
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (p *OpenAIProvider) buildBody(req Request, stream bool) ([]byte, error) {
	msgs := make([]oaMsg, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, oaMsg{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		out := oaMsg{Role: m.Role, Content: m.Content}
		if m.Role == "tool" {
			out.ToolCallID = m.ToolCallID
		}
		for _, tc := range m.ToolCalls {
			call := oaToolCall{ID: tc.ID, Type: "function"}
			call.Function.Name = tc.Name
			call.Function.Arguments = string(tc.Arguments)
			out.ToolCalls = append(out.ToolCalls, call)
		}
		msgs = append(msgs, out)
	}

	body := oaChatReq{
		Model:           p.Model,
		Messages:        msgs,
		Stream:          stream,
		ReasoningEffort: p.Effort,
	}
	for _, t := range req.Tools {
		var tool oaTool
		tool.Type = "function"
		tool.Function.Name = t.Name
		tool.Function.Description = t.Description
		tool.Function.Parameters = t.Parameters
		body.Tools = append(body.Tools, tool)
	}
	return json.Marshal(body)
}

func (p *OpenAIProvider) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := fmt.Sprintf("%s/chat/completions", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.APIKey)
	if p.SiteURL != "" {
		req.Header.Set("HTTP-Referer", p.SiteURL)
	}
	if p.AppName != "" {
		req.Header.Set("X-Title", p.AppName)
	}
	return req, nil
}

func (p *OpenAIProvider) check() error {
	if p.Client == nil {
		return errors.New("openai: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return errors.New("openai: api key is required")
	}
	if strings.TrimSpace(p.Model) == "" {
		return errors.New("openai: model is required")
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = fmt.Sprintf("status %d", resp.StatusCode)
	}
	return fmt.Errorf("openai: %s", msg)
}

func (p *OpenAIProvider) Chat(ctx context.Context, req Request) (string, error) {
	if err := p.check(); err != nil {
		return "", err
	}
	b, err := p.buildBody(req, false)
	if err != nil {
		return "", err
	}
	httpReq, err := p.newRequest(ctx, b)
	if err != nil {
		return "", err
	}

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", readAPIError(resp)
	}

	var decoded oaChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return decoded.Choices[0].Message.Content, nil
}

// StreamChat streams typed events via SSE. Tool call fragments arrive split
// across deltas; they are assembled per index and emitted once the upstream
// reports finish_reason=tool_calls.
func (p *OpenAIProvider) StreamChat(ctx context.Context, req Request) (<-chan Event, <-chan error) {
	events := make(chan Event, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		if err := p.check(); err != nil {
			errs <- err
			return
		}
		b, err := p.buildBody(req, true)
		if err != nil {
			errs <- err
			return
		}
		httpReq, err := p.newRequest(ctx, b)
		if err != nil {
			errs <- err
			return
		}

		if p.Client.Timeout < 30*time.Second {
			p.Client.Timeout = 0 // ctx controls streaming lifetime
		}

		resp, err := p.Client.Do(httpReq)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			errs <- readAPIError(resp)
			return
		}

		type partialCall struct {
			id   string
			name string
			args strings.Builder
		}
		calls := map[int]*partialCall{}
		order := []int{}

		flushCalls := func() {
			for _, idx := range order {
				pc := calls[idx]
				args := pc.args.String()
				if args == "" {
					args = "{}"
				}
				events <- Event{Type: EventToolCall, ToolCall: &ToolCall{
					ID:        pc.id,
					Name:      pc.name,
					Arguments: json.RawMessage(args),
				}}
			}
			calls = map[int]*partialCall{}
			order = order[:0]
		}

		sc := bufio.NewScanner(resp.Body)
		buf := make([]byte, 0, 64*1024)
		sc.Buffer(buf, 2*1024*1024)

		for sc.Scan() {
			line := strings.TrimSpace(sc.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}
			var decoded oaStreamResp
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				errs <- err
				return
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				errs <- errors.New(decoded.Error.Message)
				return
			}
			if len(decoded.Choices) == 0 {
				continue
			}
			choice := decoded.Choices[0]

			if choice.Delta.Reasoning != "" {
				events <- Event{Type: EventReasoning, Delta: choice.Delta.Reasoning}
			}
			if choice.Delta.Content != "" {
				events <- Event{Type: EventText, Delta: choice.Delta.Content}
			}
			for _, tc := range choice.Delta.ToolCalls {
				pc, ok := calls[tc.Index]
				if !ok {
					pc = &partialCall{}
					calls[tc.Index] = pc
					order = append(order, tc.Index)
				}
				if tc.ID != "" {
					pc.id = tc.ID
				}
				if tc.Function.Name != "" {
					pc.name = tc.Function.Name
				}
				pc.args.WriteString(tc.Function.Arguments)
			}
			if choice.FinishReason == "tool_calls" {
				flushCalls()
			}
		}

		if err := sc.Err(); err != nil {
			errs <- err
			return
		}
	}()

	return events, errs
}
