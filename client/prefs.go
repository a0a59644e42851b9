package client

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Prefs are the per-user composer settings carried from turn to turn.
type Prefs struct {
	Model      string `json:"model"`
	Effort     string `json:"effort,omitempty"`
	Visibility string `json:"visibility,omitempty"`
	WebSearch  bool   `json:"web_search,omitempty"`
}

func DefaultPrefs() Prefs {
	return Prefs{Model: "gemini-2.5-flash", Visibility: "private"}
}

// Store persists preferences between runs.
type Store interface {
	Load() (Prefs, error)
	Save(Prefs) error
}

// FileStore keeps prefs as a small JSON file, typically under the user's
// config directory.
type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Load() (Prefs, error) {
	b, err := os.ReadFile(f.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DefaultPrefs(), nil
		}
		return Prefs{}, err
	}
	var p Prefs
	if err := json.Unmarshal(b, &p); err != nil {
		return Prefs{}, err
	}
	if p.Model == "" {
		p.Model = DefaultPrefs().Model
	}
	return p, nil
}

func (f *FileStore) Save(p Prefs) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, b, 0o600)
}
