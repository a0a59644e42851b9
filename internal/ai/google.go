package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GoogleProvider drives Gemini through the generative-ai-go SDK. The SDK
// owns transport and stream framing, so unlike the HTTP providers this one
// builds a fresh client per call (the API key changes per request anyway).
type GoogleProvider struct {
	APIKey string
	Model  string
}

func NewGoogleProvider(apiKey, model string) *GoogleProvider {
	return &GoogleProvider{APIKey: apiKey, Model: model}
}

func (p *GoogleProvider) check() error {
	if strings.TrimSpace(p.APIKey) == "" {
		return errors.New("google: api key is required")
	}
	if strings.TrimSpace(p.Model) == "" {
		return errors.New("google: model is required")
	}
	return nil
}

// session converts the request into a chat session plus the final user turn.
func (p *GoogleProvider) session(client *genai.Client, req Request) (*genai.ChatSession, string) {
	model := client.GenerativeModel(p.Model)
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	cs := model.StartChat()
	last := ""
	msgs := req.Messages
	if n := len(msgs); n > 0 && msgs[n-1].Role == "user" {
		last = msgs[n-1].Content
		msgs = msgs[:n-1]
	}
	for _, m := range msgs {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		cs.History = append(cs.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}
	return cs, last
}

func textFromResponse(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				sb.WriteString(string(t))
			}
		}
	}
	return sb.String()
}

func (p *GoogleProvider) Chat(ctx context.Context, req Request) (string, error) {
	if err := p.check(); err != nil {
		return "", err
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(p.APIKey))
	if err != nil {
		return "", err
	}
	defer client.Close()

	cs, last := p.session(client, req)
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", err
	}
	text := textFromResponse(resp)
	if text == "" {
		return "", errors.New("google: empty response")
	}
	return text, nil
}

func (p *GoogleProvider) StreamChat(ctx context.Context, req Request) (<-chan Event, <-chan error) {
	events := make(chan Event, 16)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		if err := p.check(); err != nil {
			errs <- err
			return
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(p.APIKey))
		if err != nil {
			errs <- err
			return
		}
		defer client.Close()

		cs, last := p.session(client, req)
		iter := cs.SendMessageStream(ctx, genai.Text(last))
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				return
			}
			if err != nil {
				errs <- err
				return
			}
			if delta := textFromResponse(resp); delta != "" {
				events <- Event{Type: EventText, Delta: delta}
			}
		}
	}()

	return events, errs
}
