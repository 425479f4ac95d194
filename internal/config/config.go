package config

import (
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

var (
	ErrInvalidJSON      = errors.New("invalid config JSON")
	ErrInvalidTheme     = errors.New("theme must be \"dark\" or \"light\"")
	ErrInvalidServerURL = errors.New("server_url must be an http:// or https:// URL")
)

const (
	DefaultServerURL = "http://127.0.0.1:3000"
	DefaultTheme     = "dark"
)

// Config holds the local mmedit configuration.
type Config struct {
	ServerURL string  `json:"server_url"`
	WSURL     string  `json:"ws_url"` // Push channel URL; derived from server_url when empty
	Theme     *string `json:"theme"`  // Initial theme when no preference is stored: "dark" or "light"
}

// Mindmap holds the display limits served by GET /api/config.
type Mindmap struct {
	MaxFrItems           int `json:"maxFrItems"`
	MaxDimensionItems    int `json:"maxDimensionItems"`
	MaxDescriptionLength int `json:"maxDescriptionLength"`
}

// Remote is the body of GET /api/config.
type Remote struct {
	Mindmap Mindmap `json:"mindmap"`
}

// DefaultMindmap returns the limits used when the server config is missing.
func DefaultMindmap() Mindmap {
	return Mindmap{MaxFrItems: 100, MaxDimensionItems: 100, MaxDescriptionLength: 200}
}

// WithDefaults fills zero limits from DefaultMindmap.
func (m Mindmap) WithDefaults() Mindmap {
	d := DefaultMindmap()
	if m.MaxFrItems <= 0 {
		m.MaxFrItems = d.MaxFrItems
	}
	if m.MaxDimensionItems <= 0 {
		m.MaxDimensionItems = d.MaxDimensionItems
	}
	if m.MaxDescriptionLength <= 0 {
		m.MaxDescriptionLength = d.MaxDescriptionLength
	}
	return m
}

// Load reads the config from ~/.config/mmedit/config.json, after loading a
// .env file from the working directory if one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	configPath := filepath.Join(homeDir, ".config", "mmedit", "config.json")
	return LoadFrom(configPath)
}

// LoadFrom reads the config from a specific path. A missing file is not an
// error: every field has a default.
func LoadFrom(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, ErrInvalidJSON
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	if v := strings.TrimSpace(os.Getenv("MMEDIT_SERVER_URL")); v != "" {
		cfg.ServerURL = v
	}
	if v := strings.TrimSpace(os.Getenv("MMEDIT_WS_URL")); v != "" {
		cfg.WSURL = v
	}

	// Set defaults
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	cfg.ServerURL = strings.TrimSuffix(cfg.ServerURL, "/")
	if cfg.Theme == nil {
		t := DefaultTheme
		cfg.Theme = &t
	}

	switch *cfg.Theme {
	case "dark", "light":
		// valid
	default:
		return nil, ErrInvalidTheme
	}

	if cfg.WSURL == "" {
		ws, err := DeriveWSURL(cfg.ServerURL)
		if err != nil {
			return nil, err
		}
		cfg.WSURL = ws
	}

	return &cfg, nil
}

// DeriveWSURL maps http(s)://host[/prefix] to ws(s)://host[/prefix]/ws.
func DeriveWSURL(serverURL string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil || u.Host == "" {
		return "", ErrInvalidServerURL
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", ErrInvalidServerURL
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
