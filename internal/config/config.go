// Package config provides TOML configuration file loading for the client.
// The configuration file lives at ~/.excel-agent/config.toml by default,
// but can be overridden with the -config flag. CLI flags always take
// precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/lfzhong/excel-agent/internal/errors"
)

// Transport selector values.
const (
	TransportWebSocket = "websocket"
	TransportSSE       = "sse"
)

// Config represents the client configuration file structure.
type Config struct {
	// ServerURL is the backend base URL, e.g. http://127.0.0.1:8000.
	// The WebSocket endpoint is derived from it (ws scheme, /ws path)
	// and the SSE endpoint uses /query.
	ServerURL string `toml:"server_url"`

	// Transport selects the delivery mechanism: "websocket" or "sse".
	// Default: websocket. Voice questions require websocket.
	Transport string `toml:"transport"`

	// HistoryDB is the path to the SQLite database for session history.
	// Default: ~/.excel-agent/history.db. Empty string after Load means
	// use the default; set to "off" to disable persistence.
	HistoryDB string `toml:"history_db"`

	// ReconnectMs is the constant delay between WebSocket reconnection
	// attempts in milliseconds. Default: 3000.
	ReconnectMs int `toml:"reconnect_ms"`

	// VoiceCapMs is the hard wall-clock cap on one voice recording in
	// milliseconds. Default: 30000.
	VoiceCapMs int `toml:"voice_cap_ms"`

	// Plain disables the interactive TUI and colored output.
	// Default: false.
	Plain bool `toml:"plain"`
}

// Defaults returns a config populated with default values.
func Defaults() *Config {
	return &Config{
		ServerURL:   "http://127.0.0.1:8000",
		Transport:   TransportWebSocket,
		ReconnectMs: 3000,
		VoiceCapMs:  30000,
	}
}

// DefaultConfigPath returns the default config file location:
// ~/.excel-agent/config.toml. Errors only if the home directory cannot be
// determined.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".excel-agent", "config.toml"), nil
}

// DefaultHistoryPath returns the default history database location:
// ~/.excel-agent/history.db.
func DefaultHistoryPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".excel-agent", "history.db"), nil
}

// Load reads a TOML config file from the given path and returns a Config
// with defaults applied for unset fields.
//
// Behavior:
//   - If path is empty, attempts to load from the default location.
//     Returns pure defaults without error if the default file is missing.
//   - If path is specified, returns an error if the file doesn't exist.
//   - Returns an error if the file exists but cannot be parsed.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path == "" {
		// No explicit path: try the default location, but don't error if
		// missing. The client runs fine without a config file.
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
		if _, err := os.Stat(defaultPath); os.IsNotExist(err) {
			return cfg, nil
		}
		path = defaultPath
	} else {
		// Explicit path provided: error if the file doesn't exist. If the
		// user names a config file, it should be there.
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults fills zero values left by a sparse config file.
func applyDefaults(cfg *Config) {
	d := Defaults()
	if cfg.ServerURL == "" {
		cfg.ServerURL = d.ServerURL
	}
	if cfg.Transport == "" {
		cfg.Transport = d.Transport
	}
	if cfg.ReconnectMs <= 0 {
		cfg.ReconnectMs = d.ReconnectMs
	}
	if cfg.VoiceCapMs <= 0 {
		cfg.VoiceCapMs = d.VoiceCapMs
	}
}

// Validate checks the config for values the client cannot run with.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return errors.New(errors.CodeConfigInvalid, "server_url must not be empty")
	}
	if c.Transport != TransportWebSocket && c.Transport != TransportSSE {
		return errors.New(errors.CodeConfigInvalid,
			fmt.Sprintf("transport must be %q or %q, got %q", TransportWebSocket, TransportSSE, c.Transport))
	}
	return nil
}
