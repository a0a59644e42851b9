package catalog

import (
	"errors"

	"github.com/Marker-bit/mrkrbt-chat/internal/keys"
)

// ErrNotConfigured means none of the model's providers has a usable key.
// Handlers turn it into a "add an API key" rejection before any upstream call.
var ErrNotConfigured = errors.New("no configured provider for model")

type Credential struct {
	Provider   Provider
	UpstreamID string
	APIKey     string
}

// Resolve walks the model's providers in declared order and returns the
// first one that is keyless or has a non-empty key in the set.
func Resolve(m Model, set keys.Set) (Credential, error) {
	for _, mp := range m.Providers {
		p, ok := FindProvider(mp.Provider)
		if !ok {
			continue
		}
		if !p.RequiresKey {
			return Credential{Provider: p, UpstreamID: mp.UpstreamID}, nil
		}
		if set.Has(p.ID) {
			return Credential{Provider: p, UpstreamID: mp.UpstreamID, APIKey: set.Get(p.ID)}, nil
		}
	}
	return Credential{}, ErrNotConfigured
}
