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

const anthropicVersion = "2023-06-01"

// AnthropicProvider speaks the Anthropic messages API. Effort maps onto the
// extended-thinking token budget.
type AnthropicProvider struct {
	BaseURL string
	APIKey  string
	Model   string
	Effort  string
	Client  *http.Client
}

func NewAnthropicProvider(baseURL, apiKey, model, effort string) *AnthropicProvider {
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
	}
	return &AnthropicProvider{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   model,
		Effort:  effort,
		Client:  &http.Client{Timeout: 90 * time.Second},
	}
}

type antMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type antThinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type antChatReq struct {
	Model     string       `json:"model"`
	System    string       `json:"system,omitempty"`
	Messages  []antMsg     `json:"messages"`
	MaxTokens int          `json:"max_tokens"`
	Stream    bool         `json:"stream"`
	Thinking  *antThinking `json:"thinking,omitempty"`
}

type antChatResp struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

type antStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"delta"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func thinkingBudget(effort string) int {
	switch effort {
	case "low":
		return 1024
	case "medium":
		return 4096
	case "high":
		return 16384
	default:
		return 0
	}
}

func (p *AnthropicProvider) buildBody(req Request, stream bool) ([]byte, error) {
	msgs := make([]antMsg, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := m.Role
		// Tool results are folded into user turns: this client does not
		// run the tool loop, the service routes tool-capable turns to the
		// OpenAI-compatible client instead.
		if role != "user" && role != "assistant" {
			role = "user"
		}
		msgs = append(msgs, antMsg{Role: role, Content: m.Content})
	}

	body := antChatReq{
		Model:     p.Model,
		System:    req.System,
		Messages:  msgs,
		MaxTokens: 8192,
		Stream:    stream,
	}
	if budget := thinkingBudget(p.Effort); budget > 0 {
		body.Thinking = &antThinking{Type: "enabled", BudgetTokens: budget}
	}
	return json.Marshal(body)
}

func (p *AnthropicProvider) newRequest(ctx context.Context, body []byte) (*http.Request, error) {
	url := fmt.Sprintf("%s/messages", strings.TrimRight(p.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	return req, nil
}

func (p *AnthropicProvider) check() error {
	if p.Client == nil {
		return errors.New("anthropic: http client is nil")
	}
	if strings.TrimSpace(p.APIKey) == "" {
		return errors.New("anthropic: api key is required")
	}
	if strings.TrimSpace(p.Model) == "" {
		return errors.New("anthropic: model is required")
	}
	return nil
}

func (p *AnthropicProvider) Chat(ctx context.Context, req Request) (string, error) {
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
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(body))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("anthropic: %s", msg)
	}

	var decoded antChatResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return "", errors.New(decoded.Error.Message)
	}
	var sb strings.Builder
	for _, c := range decoded.Content {
		if c.Type == "text" {
			sb.WriteString(c.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("anthropic: empty response")
	}
	return sb.String(), nil
}

func (p *AnthropicProvider) StreamChat(ctx context.Context, req Request) (<-chan Event, <-chan error) {
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
			p.Client.Timeout = 0
		}

		resp, err := p.Client.Do(httpReq)
		if err != nil {
			errs <- err
			return
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
			msg := strings.TrimSpace(string(body))
			if msg == "" {
				msg = fmt.Sprintf("status %d", resp.StatusCode)
			}
			errs <- fmt.Errorf("anthropic: %s", msg)
			return
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

			var decoded antStreamEvent
			if err := json.Unmarshal([]byte(data), &decoded); err != nil {
				errs <- err
				return
			}
			if decoded.Error != nil && decoded.Error.Message != "" {
				errs <- errors.New(decoded.Error.Message)
				return
			}

			switch decoded.Type {
			case "content_block_delta":
				switch decoded.Delta.Type {
				case "text_delta":
					if decoded.Delta.Text != "" {
						events <- Event{Type: EventText, Delta: decoded.Delta.Text}
					}
				case "thinking_delta":
					if decoded.Delta.Thinking != "" {
						events <- Event{Type: EventReasoning, Delta: decoded.Delta.Thinking}
					}
				}
			case "message_stop":
				return
			}
		}

		if err := sc.Err(); err != nil {
			errs <- err
			return
		}
	}()

	return events, errs
}
