// Package prefs persists per-user UI preferences between runs.
package prefs

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Prefs holds the stored preferences.
type Prefs struct {
	Theme string `json:"theme,omitempty"`
}

// Store reads and writes preferences as JSON at a fixed path.
type Store struct {
	path string
}

// NewStore returns a store for path. An empty path selects DefaultPath.
func NewStore(path string) *Store {
	if path == "" {
		path = DefaultPath()
	}
	return &Store{path: path}
}

// DefaultPath returns ~/.mmedit/prefs.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".mmedit", "prefs.json")
	}
	return filepath.Join(home, ".mmedit", "prefs.json")
}

func (s *Store) Path() string {
	return s.path
}

// Load returns the stored preferences. A missing file yields zero Prefs.
func (s *Store) Load() (Prefs, error) {
	var p Prefs
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return p, nil
		}
		return p, err
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return Prefs{}, err
	}
	return p, nil
}

// Save writes p, creating the parent directory when needed.
func (s *Store) Save(p Prefs) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

// SetTheme updates only the theme, keeping other stored values.
func (s *Store) SetTheme(theme string) error {
	p, err := s.Load()
	if err != nil {
		p = Prefs{}
	}
	p.Theme = theme
	return s.Save(p)
}
