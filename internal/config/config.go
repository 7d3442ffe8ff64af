// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete client configuration.
type Config struct {
	API     APIConfig     `toml:"api" json:"api"`
	Chat    ChatConfig    `toml:"chat" json:"chat"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Log     LogConfig     `toml:"log" json:"log"`
}

// APIConfig describes the chat-completions endpoint and the request values
// used when a conversation does not set its own.
type APIConfig struct {
	// Endpoint is the full URL of the chat completions route
	Endpoint string `toml:"endpoint" json:"endpoint"`
	// Model is the default model name
	Model string `toml:"model" json:"model"`
	// Temperature is the default sampling temperature
	Temperature float64 `toml:"temperature" json:"temperature"`
	// TopP is the default nucleus sampling value
	TopP float64 `toml:"top_p" json:"top_p"`
	// APIKey is sent as a bearer token when set
	APIKey string `toml:"api_key" json:"api_key,omitempty"`
}

// ChatConfig holds the values copied into a conversation when it starts.
type ChatConfig struct {
	DefaultTemperature float64 `toml:"default_temperature" json:"default_temperature"`
	DefaultTopP        float64 `toml:"default_top_p" json:"default_top_p"`
	UserAvatar         string  `toml:"user_avatar" json:"user_avatar"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is one of: file, bolt, sqlite, memory
	Backend string `toml:"backend" json:"backend"`
	// Dir holds the backend's files; "~" expands to the home directory
	Dir string `toml:"dir" json:"dir"`
}

// LogConfig controls logger construction.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with the built-in defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Endpoint:    "http://localhost:8885/v1/chat/completions",
			Model:       "qwen2_5-14b-instruct",
			Temperature: 0.8,
			TopP:        0.7,
		},
		Chat: ChatConfig{
			DefaultTemperature: 0.7,
			DefaultTopP:        0.9,
			UserAvatar:         "/user-avatar.png",
		},
		Storage: StorageConfig{
			Backend: "file",
			Dir:     "~/.mirau",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".mirau"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// ExpandHome replaces a leading "~" with the user's home directory.
func ExpandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the default locations.
// Tries TOML first, then JSON, and falls back to defaults. Environment
// overrides are applied last in every case.
func Load() (*Config, error) {
	if path, err := ConfigPathTOML(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}
	if path, err := ConfigPathJSON(); err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file. Files ending in
// .json are decoded as JSON, anything else as TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode JSON config %s: %w", path, err)
		}
	} else {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML config %s: %w", path, err)
		}
	}

	cfg.fillDefaults()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// fillDefaults restores defaults for string fields a file left empty.
// Numeric fields keep whatever the file set, including zero.
func (c *Config) fillDefaults() {
	defaults := Default()

	if c.API.Endpoint == "" {
		c.API.Endpoint = defaults.API.Endpoint
	}
	if c.API.Model == "" {
		c.API.Model = defaults.API.Model
	}
	if c.Chat.UserAvatar == "" {
		c.Chat.UserAvatar = defaults.Chat.UserAvatar
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = defaults.Storage.Dir
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
}

// ApplyEnvOverrides applies MIRAU_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MIRAU_ENDPOINT"); v != "" {
		c.API.Endpoint = v
	}
	if v := os.Getenv("MIRAU_MODEL"); v != "" {
		c.API.Model = v
	}
	if v := os.Getenv("MIRAU_API_KEY"); v != "" {
		c.API.APIKey = v
	}
	if v := os.Getenv("MIRAU_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.API.Temperature = f
		}
	}
	if v := os.Getenv("MIRAU_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("MIRAU_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("MIRAU_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// SaveTOML writes the configuration to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// SECURITY: the file may carry an API key
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	fmt.Fprintln(file, "# mirau configuration file")
	fmt.Fprintln(file, "")

	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidBackends lists the accepted storage.backend values.
var ValidBackends = []string{"file", "bolt", "sqlite", "memory"}

// Validate checks the configuration and returns ValidateErrors when
// anything is out of range.
func (c *Config) Validate() error {
	var errs ValidateErrors

	u, err := url.Parse(c.API.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "api.endpoint",
			Message: fmt.Sprintf("invalid URL '%s', must be an absolute http(s) URL", c.API.Endpoint),
		})
	}
	if c.API.Temperature < 0 || c.API.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "api.temperature",
			Message: fmt.Sprintf("value %.2f out of range [0, 2]", c.API.Temperature),
		})
	}
	if c.API.TopP < 0 || c.API.TopP > 1 {
		errs = append(errs, ValidationError{
			Field:   "api.top_p",
			Message: fmt.Sprintf("value %.2f out of range [0, 1]", c.API.TopP),
		})
	}
	if c.Chat.DefaultTemperature < 0 || c.Chat.DefaultTemperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "chat.default_temperature",
			Message: fmt.Sprintf("value %.2f out of range [0, 2]", c.Chat.DefaultTemperature),
		})
	}
	if c.Chat.DefaultTopP < 0 || c.Chat.DefaultTopP > 1 {
		errs = append(errs, ValidationError{
			Field:   "chat.default_top_p",
			Message: fmt.Sprintf("value %.2f out of range [0, 1]", c.Chat.DefaultTopP),
		})
	}

	backendOK := false
	for _, b := range ValidBackends {
		if strings.EqualFold(c.Storage.Backend, b) {
			backendOK = true
			break
		}
	}
	if !backendOK {
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: %s", c.Storage.Backend, strings.Join(ValidBackends, ", ")),
		})
	}

	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("invalid format '%s', must be one of: console, json", c.Log.Format),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}
