package ai

import (
	"fmt"
	"strings"
	"sync"
)

// Config carries everything a factory needs for one request: the key comes
// from the caller's cookie, the model from credential resolution.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	Effort  string
}

type ProviderFactory func(cfg Config) Provider

type Registry struct {
	mu        sync.RWMutex
	factories map[string]ProviderFactory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]ProviderFactory)}
}

func (r *Registry) Register(name string, f ProviderFactory) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

func (r *Registry) Get(name string, cfg Config) (Provider, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown ai provider: %s", name)
	}
	return f(cfg), nil
}
