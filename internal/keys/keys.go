package keys

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Set maps provider id -> API key. Keys never touch the database: the
// browser keeps them and sends them back in a cookie with every request.
type Set map[string]string

// CookieName is the cookie carrying the base64-encoded key set.
const CookieName = "api_keys"

func (s Set) Get(provider string) string {
	return strings.TrimSpace(s[provider])
}

func (s Set) Has(provider string) bool {
	return s.Get(provider) != ""
}

// Masked returns the set with every key reduced to its last four
// characters, safe to echo back to the client.
func (s Set) Masked() map[string]string {
	out := make(map[string]string, len(s))
	for p, k := range s {
		k = strings.TrimSpace(k)
		if len(k) > 4 {
			out[p] = "..." + k[len(k)-4:]
		} else if k != "" {
			out[p] = "..."
		}
	}
	return out
}

// Encode serializes a key set for cookie transport.
func Encode(s Set) (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// Decode parses a cookie value produced by Encode. An empty value yields
// an empty set, not an error.
func Decode(raw string) (Set, error) {
	if strings.TrimSpace(raw) == "" {
		return Set{}, nil
	}
	b, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("decode key cookie: %w", err)
	}
	var s Set
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("parse key cookie: %w", err)
	}
	return s, nil
}
