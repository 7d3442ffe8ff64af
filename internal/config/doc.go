// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading for the mirau chat client.
//
// Supports both TOML and JSON configuration formats, with sensible defaults,
// environment variable overrides, and validation.
//
// # Key Types
//
//   - Config: complete configuration
//   - APIConfig: chat-completions endpoint and request defaults
//   - ChatConfig: defaults for newly started conversations
//   - StorageConfig: persistence backend selection
//   - LogConfig: logger level and format
//
// # Configuration Precedence
//
//   - Environment variables (MIRAU_*)
//   - ~/.mirau/config.toml
//   - ~/.mirau/config.json
//   - Built-in defaults
//
// # Usage
//
//	cfg, err := config.Load()
//	if err != nil {
//	    return err
//	}
//	stop, err := config.Watch(ctx, path, func(next *config.Config) { ... })
package config
