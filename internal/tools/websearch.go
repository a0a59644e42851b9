package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Marker-bit/mrkrbt-chat/internal/ai"
)

const SearchToolName = "web_search"

const maxErrorBodyBytes = 8 * 1024

func SearchToolDef() ai.ToolDef {
	return ai.ToolDef{
		Name:        SearchToolName,
		Description: "Search the web and return the top results with snippets.",
		Parameters: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query": {"type": "string", "description": "Search query"}
			},
			"required": ["query"]
		}`),
	}
}

type SearchInput struct {
	Query string `json:"query"`
}

type SearchResult struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type SearchOutput struct {
	Results []SearchResult `json:"results"`
}

// WebSearcher wraps the Brave web search API. The subscription token comes
// from the user's key set under the "brave" provider id.
type WebSearcher struct {
	BaseURL string
	APIKey  string
	Client  *http.Client
}

func NewWebSearcher(baseURL, apiKey string) *WebSearcher {
	if baseURL == "" {
		baseURL = "https://api.search.brave.com/res/v1"
	}
	return &WebSearcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type braveAPIResp struct {
	Web struct {
		Results []braveAPIResult `json:"results"`
	} `json:"web"`
}

type braveAPIResult struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Snippet     string `json:"snippet"`
}

func (s *WebSearcher) Search(ctx context.Context, in SearchInput) (SearchOutput, error) {
	if strings.TrimSpace(s.APIKey) == "" {
		return SearchOutput{}, errors.New("websearch: api key is required")
	}
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return SearchOutput{}, errors.New("websearch: query is required")
	}

	endpoint, err := url.Parse(strings.TrimRight(s.BaseURL, "/") + "/web/search")
	if err != nil {
		return SearchOutput{}, fmt.Errorf("websearch: parse endpoint: %w", err)
	}
	params := endpoint.Query()
	params.Set("q", query)
	params.Set("count", "5")
	params.Set("spellcheck", "0")
	params.Set("text_decorations", "0")
	endpoint.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return SearchOutput{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return SearchOutput{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return SearchOutput{}, fmt.Errorf("websearch: status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded braveAPIResp
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return SearchOutput{}, fmt.Errorf("websearch: decode: %w", err)
	}

	out := SearchOutput{}
	for _, r := range decoded.Web.Results {
		snippet := r.Snippet
		if snippet == "" {
			snippet = r.Description
		}
		out.Results = append(out.Results, SearchResult{
			URL:     r.URL,
			Title:   r.Title,
			Snippet: snippet,
		})
	}
	return out, nil
}
