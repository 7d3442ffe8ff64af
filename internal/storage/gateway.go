// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// Record keys.
const (
	KeyChatState      = "chatState"
	KeyCharacterState = "characterState"
)

// Gateway is durable key to value storage.
type Gateway interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error
	// Close releases the backend.
	Close() error
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned by Get when the key has never been set.
// Use errors.Is(err, ErrNotFound) to check for this error.
var ErrNotFound = &StoreError{Message: "key not found"}

// ErrInvalidKey is returned for keys that cannot be stored safely.
var ErrInvalidKey = &StoreError{Message: "invalid key"}

// ErrClosed is returned after Close.
var ErrClosed = &StoreError{Message: "store closed"}

// StoreError represents a gateway error.
// It implements the error interface and can be compared using errors.Is.
type StoreError struct {
	Message string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing store errors.
func (e *StoreError) Is(target error) bool {
	t, ok := target.(*StoreError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,128}$`)

func checkKey(key string) error {
	if !keyPattern.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// =============================================================================
// BACKEND SELECTION
// =============================================================================

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendBolt   = "bolt"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Options selects and locates a backend.
type Options struct {
	Backend string
	// Dir is where file-backed stores keep their data. Ignored for memory.
	Dir string
}

// Open returns the gateway named by opts.Backend.
func Open(opts Options) (Gateway, error) {
	switch strings.ToLower(opts.Backend) {
	case BackendFile, "":
		return NewFileStore(opts.Dir)
	case BackendBolt:
		return OpenBolt(opts.Dir)
	case BackendSQLite:
		return OpenSQLite(opts.Dir)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", opts.Backend)
	}
}
