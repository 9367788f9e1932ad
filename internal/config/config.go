// Package config loads the aido settings file and the API key.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Defaults.
const (
	DefaultModel           = "o4-mini"
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultRequestTimeout  = 5 * time.Minute
	DefaultLogLevel        = "warn"
	DefaultMaxRounds       = 100
	DefaultCacheTTL        = time.Hour
	DefaultShellTimeoutSec = 200
)

// Environment variables that override the settings file.
const (
	EnvAPIKey = "OPENAI_API_KEY"
	EnvModel  = "AIDO_MODEL"
)

// ErrMissingAPIKey is returned by Validate when no key is configured.
var ErrMissingAPIKey = errors.New("OpenAI API key is required")

// Config holds the settings read from ~/.config/aido.json.
type Config struct {
	APIKey            string `json:"api_key"`
	DefaultModel      string `json:"default_model"`
	BaseURL           string `json:"base_url,omitempty"`
	LogLevel          string `json:"log_level,omitempty"`
	RequestTimeoutSec int    `json:"request_timeout_sec,omitempty"`
	MaxRounds         int    `json:"max_rounds,omitempty"`
	CachePath         string `json:"cache_path,omitempty"`
	CacheTTLSec       int    `json:"cache_ttl_sec,omitempty"`
	CustomToolsPath   string `json:"custom_tools_path,omitempty"`
	ShellTimeoutSec   int    `json:"shell_timeout_sec,omitempty"`

	// ArgumentAliases renames misspelled tool arguments, keyed by tool name
	// then by the wrong argument name.
	ArgumentAliases map[string]map[string]string `json:"argument_aliases,omitempty"`

	// path is where the config was loaded from, for error messages.
	path string
}

// DefaultPath returns ~/.config/aido.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("find home directory: %w", err)
	}
	return filepath.Join(home, ".config", "aido.json"), nil
}

// DefaultConfig returns a config with every optional setting filled in.
func DefaultConfig() *Config {
	cfg := &Config{
		DefaultModel:      DefaultModel,
		BaseURL:           DefaultBaseURL,
		LogLevel:          DefaultLogLevel,
		RequestTimeoutSec: int(DefaultRequestTimeout / time.Second),
		MaxRounds:         DefaultMaxRounds,
		CacheTTLSec:       int(DefaultCacheTTL / time.Second),
		ShellTimeoutSec:   DefaultShellTimeoutSec,
		ArgumentAliases: map[string]map[string]string{
			"recursive_ls_paginated": {"page": "current_page"},
		},
	}
	if dir, err := os.UserCacheDir(); err == nil {
		cfg.CachePath = filepath.Join(dir, "aido", "cache.db3")
	}
	if home, err := os.UserHomeDir(); err == nil {
		// ~/.config on every platform, next to aido.json.
		cfg.CustomToolsPath = filepath.Join(home, ".config", "aido", "tools.toml")
	}
	return cfg
}

// Load reads the config at path over the defaults, then applies
// environment overrides. The OS keyring is consulted last for the API
// key. A missing file is not an error; Validate reports the missing key
// instead.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Debug("config file not found, using defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		cfg.APIKey = keyringAPIKeyValue()
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE files into the environment. Variables that
// are already set win, and missing files are skipped.
func LoadDotEnv(paths ...string) {
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv(EnvModel); v != "" {
		c.DefaultModel = v
	}
}

// Validate checks the settings a session cannot run without.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		where := c.path
		if where == "" {
			where = "the config file"
		}
		return fmt.Errorf("%w: set api_key in %s or %s", ErrMissingAPIKey, where, EnvAPIKey)
	}
	if c.MaxRounds < 0 {
		return fmt.Errorf("max_rounds must not be negative, got %d", c.MaxRounds)
	}
	return nil
}

// Path returns the file the config was loaded from.
func (c *Config) Path() string { return c.path }

// Save writes the config as indented JSON, readable only by the owner
// since it holds the API key.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// SlogLevel maps LogLevel to a slog level, defaulting to warn.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// CacheTTL returns the fetch cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	if c.CacheTTLSec <= 0 {
		return DefaultCacheTTL
	}
	return time.Duration(c.CacheTTLSec) * time.Second
}

// ShellTimeout returns the default timeout of shell tools.
func (c *Config) ShellTimeout() time.Duration {
	if c.ShellTimeoutSec <= 0 {
		return DefaultShellTimeoutSec * time.Second
	}
	return time.Duration(c.ShellTimeoutSec) * time.Second
}

var modelAliases = map[string]string{
	"4o":      "gpt-4o",
	"4omini":  "gpt-4o-mini",
	"4o-mini": "gpt-4o-mini",
	"o3mini":  "o3-mini",
	"o4mini":  "o4-mini",
}

// ResolveModel expands a short model alias. Unknown names pass through.
func ResolveModel(name string) string {
	if full, ok := modelAliases[name]; ok {
		return full
	}
	return name
}
