// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MIRAU_ENDPOINT", "MIRAU_MODEL", "MIRAU_API_KEY", "MIRAU_TEMPERATURE",
		"MIRAU_STORAGE_BACKEND", "MIRAU_STORAGE_DIR", "MIRAU_LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	require.Equal(t, "http://localhost:8885/v1/chat/completions", cfg.API.Endpoint)
	require.Equal(t, "qwen2_5-14b-instruct", cfg.API.Model)
	require.InDelta(t, 0.8, cfg.API.Temperature, 1e-9)
	require.InDelta(t, 0.7, cfg.API.TopP, 1e-9)
	require.InDelta(t, 0.7, cfg.Chat.DefaultTemperature, 1e-9)
	require.InDelta(t, 0.9, cfg.Chat.DefaultTopP, 1e-9)
	require.Equal(t, "/user-avatar.png", cfg.Chat.UserAvatar)
	require.Equal(t, "file", cfg.Storage.Backend)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromPathTOML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[api]
endpoint = "https://llm.example.com/v1/chat/completions"
model = "mirau-7b"
temperature = 1.1

[storage]
backend = "bolt"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "https://llm.example.com/v1/chat/completions", cfg.API.Endpoint)
	require.Equal(t, "mirau-7b", cfg.API.Model)
	require.InDelta(t, 1.1, cfg.API.Temperature, 1e-9)
	require.InDelta(t, 0.7, cfg.API.TopP, 1e-9)
	require.Equal(t, "bolt", cfg.Storage.Backend)
	// unset sections keep defaults
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "~/.mirau", cfg.Storage.Dir)
}

func TestLoadFromPathJSON(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"api":{"model":"json-model"},"log":{"format":"json"}}`), 0600))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, "json-model", cfg.API.Model)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, Default().API.Endpoint, cfg.API.Endpoint)
}

func TestLoadFromPathInvalid(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[storage]\nbackend = \"redis\"\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)

	var verrs ValidateErrors
	require.True(t, errors.As(err, &verrs))
	require.Len(t, verrs, 1)
	require.Equal(t, "storage.backend", verrs[0].Field)
}

func TestApplyEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("MIRAU_ENDPOINT", "http://127.0.0.1:9000/v1/chat/completions")
	t.Setenv("MIRAU_MODEL", "env-model")
	t.Setenv("MIRAU_API_KEY", "sk-test")
	t.Setenv("MIRAU_STORAGE_BACKEND", "sqlite")
	t.Setenv("MIRAU_LOG_LEVEL", "debug")

	cfg := Default()
	cfg.ApplyEnvOverrides()

	require.Equal(t, "http://127.0.0.1:9000/v1/chat/completions", cfg.API.Endpoint)
	require.Equal(t, "env-model", cfg.API.Model)
	require.Equal(t, "sk-test", cfg.API.APIKey)
	require.Equal(t, "sqlite", cfg.Storage.Backend)
	require.Equal(t, "debug", cfg.Log.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"relative endpoint", func(c *Config) { c.API.Endpoint = "/v1/chat" }, "api.endpoint"},
		{"ftp endpoint", func(c *Config) { c.API.Endpoint = "ftp://host/x" }, "api.endpoint"},
		{"temperature high", func(c *Config) { c.API.Temperature = 2.5 }, "api.temperature"},
		{"top_p negative", func(c *Config) { c.API.TopP = -0.1 }, "api.top_p"},
		{"chat top_p high", func(c *Config) { c.Chat.DefaultTopP = 1.5 }, "chat.default_top_p"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			var verrs ValidateErrors
			require.True(t, errors.As(cfg.Validate(), &verrs))
			require.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

func TestSaveTOMLRoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg := Default()
	cfg.API.Model = "saved-model"
	cfg.API.APIKey = "secret"
	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, cfg, loaded)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandHome("~/.mirau")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, ".mirau"), got)

	got, err = ExpandHome("/var/lib/mirau")
	require.NoError(t, err)
	require.Equal(t, "/var/lib/mirau", got)
}

func TestWatchReloads(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api]\nmodel = \"first\"\n"), 0600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	require.NoError(t, Watch(ctx, path, func(c *Config) { got <- c }, WatchOptions{Debounce: 50 * time.Millisecond}))

	require.NoError(t, os.WriteFile(path, []byte("[api]\nmodel = \"second\"\n"), 0600))

	select {
	case cfg := <-got:
		require.Equal(t, "second", cfg.API.Model)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
}
