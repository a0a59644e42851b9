package catalog

import "strings"

// Feature tags a provider-specific model binding may advertise.
const (
	FeatureVision    = "vision"
	FeatureReasoning = "reasoning"
	FeatureTools     = "tools"
)

type Provider struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Icon        string `json:"icon"`
	KeyHelp     string `json:"key_help,omitempty"`
	KeyURL      string `json:"key_url,omitempty"`
	RequiresKey bool   `json:"requires_key"`
}

// ModelProvider binds a logical model to one upstream provider.
type ModelProvider struct {
	Provider   string   `json:"provider"`
	UpstreamID string   `json:"upstream_id"`
	Features   []string `json:"features,omitempty"`
}

type Model struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	ShortTitle string `json:"short_title,omitempty"`
	Icon       string `json:"icon"`
	// Providers are tried in declared order during credential resolution.
	Providers     []ModelProvider `json:"providers"`
	SupportsTools bool            `json:"supports_tools"`
}

func (m Model) HasFeature(provider, feature string) bool {
	for _, mp := range m.Providers {
		if mp.Provider != provider {
			continue
		}
		for _, f := range mp.Features {
			if f == feature {
				return true
			}
		}
	}
	return false
}

var providers = []Provider{
	{ID: "openai", Title: "OpenAI", Icon: "openai", RequiresKey: true,
		KeyHelp: "Create a key in the OpenAI dashboard.",
		KeyURL:  "https://platform.openai.com/api-keys"},
	{ID: "anthropic", Title: "Anthropic", Icon: "anthropic", RequiresKey: true,
		KeyHelp: "Create a key in the Anthropic console.",
		KeyURL:  "https://console.anthropic.com/settings/keys"},
	{ID: "google", Title: "Google", Icon: "google", RequiresKey: true,
		KeyHelp: "Create a key in Google AI Studio.",
		KeyURL:  "https://aistudio.google.com/apikey"},
	{ID: "openrouter", Title: "OpenRouter", Icon: "openrouter", RequiresKey: true,
		KeyHelp: "Create a key in the OpenRouter dashboard.",
		KeyURL:  "https://openrouter.ai/keys"},
	{ID: "ollama", Title: "Ollama", Icon: "ollama", RequiresKey: false,
		KeyHelp: "Runs against a local Ollama server, no key needed."},
}

var modelCatalog = []Model{
	{
		ID: "gpt-5.2", Title: "GPT 5.2", ShortTitle: "GPT", Icon: "openai",
		SupportsTools: true,
		Providers: []ModelProvider{
			{Provider: "openai", UpstreamID: "gpt-5.2",
				Features: []string{FeatureVision, FeatureReasoning, FeatureTools}},
			{Provider: "openrouter", UpstreamID: "openai/gpt-5.2",
				Features: []string{FeatureVision, FeatureReasoning, FeatureTools}},
		},
	},
	{
		ID: "gpt-5.2-mini", Title: "GPT 5.2 mini", ShortTitle: "GPT mini", Icon: "openai",
		SupportsTools: true,
		Providers: []ModelProvider{
			{Provider: "openai", UpstreamID: "gpt-5.2-mini",
				Features: []string{FeatureVision, FeatureTools}},
			{Provider: "openrouter", UpstreamID: "openai/gpt-5.2-mini",
				Features: []string{FeatureVision, FeatureTools}},
		},
	},
	{
		ID: "claude-sonnet-4-5", Title: "Claude Sonnet 4.5", ShortTitle: "Sonnet", Icon: "anthropic",
		SupportsTools: true,
		Providers: []ModelProvider{
			{Provider: "anthropic", UpstreamID: "claude-sonnet-4-5",
				Features: []string{FeatureVision, FeatureReasoning, FeatureTools}},
			{Provider: "openrouter", UpstreamID: "anthropic/claude-sonnet-4.5",
				Features: []string{FeatureVision, FeatureReasoning, FeatureTools}},
		},
	},
	{
		ID: "gemini-2.5-flash", Title: "Gemini 2.5 Flash", ShortTitle: "Flash", Icon: "google",
		Providers: []ModelProvider{
			{Provider: "google", UpstreamID: "gemini-2.5-flash",
				Features: []string{FeatureVision, FeatureReasoning}},
			{Provider: "openrouter", UpstreamID: "google/gemini-2.5-flash",
				Features: []string{FeatureVision, FeatureReasoning}},
		},
	},
	{
		ID: "gemini-2.5-pro", Title: "Gemini 2.5 Pro", ShortTitle: "Pro", Icon: "google",
		Providers: []ModelProvider{
			{Provider: "google", UpstreamID: "gemini-2.5-pro",
				Features: []string{FeatureVision, FeatureReasoning}},
			{Provider: "openrouter", UpstreamID: "google/gemini-2.5-pro",
				Features: []string{FeatureVision, FeatureReasoning}},
		},
	},
	{
		ID: "llama3", Title: "Llama 3", ShortTitle: "Llama", Icon: "meta",
		Providers: []ModelProvider{
			{Provider: "ollama", UpstreamID: "llama3:latest"},
			{Provider: "openrouter", UpstreamID: "meta-llama/llama-3.3-70b-instruct"},
		},
	},
}

func Models() []Model { return modelCatalog }

func Providers() []Provider { return providers }

// FindModel looks up a logical model id; the bool reports whether it exists.
func FindModel(id string) (Model, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, m := range modelCatalog {
		if strings.ToLower(m.ID) == id {
			return m, true
		}
	}
	return Model{}, false
}

func FindProvider(id string) (Provider, bool) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range providers {
		if p.ID == id {
			return p, true
		}
	}
	return Provider{}, false
}
