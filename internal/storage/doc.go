// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the key-value persistence gateway for chat state.
//
// The chat core stores exactly two records, chatState and characterState,
// each as one JSON value under its own key. Any Gateway can hold them.
//
// # Key Types
//
//   - Gateway: get/set/close over string keys and byte values
//   - MemoryStore: in-process map, for tests and --storage memory
//   - FileStore: one JSON file per key, written atomically
//   - BoltStore: one bbolt database, bucket "state"
//   - SQLiteStore: one SQLite database, table "kv"
//
// # Usage
//
//	gw, err := storage.Open(storage.Options{Backend: "file", Dir: dir})
//	if err != nil {
//	    return err
//	}
//	defer gw.Close()
//
//	state, err := storage.LoadChatState(ctx, gw)
//
// # Storage Location
//
// The file, bolt and sqlite backends keep their data under Options.Dir,
// which defaults to ~/.mirau.
package storage
