package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Marker-bit/mrkrbt-chat/internal/ai"
)

const ImageToolName = "generate_image"

// ImageToolDef is offered to the model whenever an OpenAI key is present.
func ImageToolDef() ai.ToolDef {
	return ai.ToolDef{
		Name:        ImageToolName,
		Description: "Generate an image from a text prompt. Returns a data URL.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"prompt": {"type": "string", "description": "What to draw"}
			},
			"required": ["prompt"]
		}`),
	}
}

type ImageInput struct {
	Prompt string `json:"prompt"`
}

type ImageOutput struct {
	URL       string `json:"url"`
	MediaType string `json:"media_type"`
}

// ImageGenerator calls the OpenAI images endpoint with the user's own key.
type ImageGenerator struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewImageGenerator(baseURL, apiKey string) *ImageGenerator {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &ImageGenerator{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type imageAPIReq struct {
	Model          string `json:"model"`
	Prompt         string `json:"prompt"`
	N              int    `json:"n"`
	Size           string `json:"size"`
	ResponseFormat string `json:"response_format"`
}

type imageAPIResp struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func (g *ImageGenerator) Generate(ctx context.Context, in ImageInput) (ImageOutput, error) {
	if strings.TrimSpace(g.APIKey) == "" {
		return ImageOutput{}, errors.New("imagegen: api key is required")
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return ImageOutput{}, errors.New("imagegen: prompt is required")
	}

	body, err := json.Marshal(imageAPIReq{
		Model:          "gpt-image-1",
		Prompt:         in.Prompt,
		N:              1,
		Size:           "1024x1024",
		ResponseFormat: "b64_json",
	})
	if err != nil {
		return ImageOutput{}, err
	}

	url := fmt.Sprintf("%s/images/generations", strings.TrimRight(g.BaseURL, "/"))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ImageOutput{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.APIKey)

	resp, err := g.Client.Do(req)
	if err != nil {
		return ImageOutput{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		msg := strings.TrimSpace(string(raw))
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return ImageOutput{}, fmt.Errorf("imagegen: %s", msg)
	}

	var decoded imageAPIResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return ImageOutput{}, err
	}
	if decoded.Error != nil && decoded.Error.Message != "" {
		return ImageOutput{}, errors.New(decoded.Error.Message)
	}
	if len(decoded.Data) == 0 || decoded.Data[0].B64JSON == "" {
		return ImageOutput{}, errors.New("imagegen: empty response")
	}

	return ImageOutput{
		URL:       "data:image/png;base64," + decoded.Data[0].B64JSON,
		MediaType: "image/png",
	}, nil
}
