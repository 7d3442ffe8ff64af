// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package history owns the branching conversation model.
//
// A conversation is a system group followed by user and assistant groups.
// Each group holds one or more variants of its turn and a pointer to the
// active one. Editing an assistant turn branches: variants after the edited
// one are discarded and the edit becomes the new active variant. History is
// linear per group, not a tree.
//
// # Key Types
//
//   - Manager: the in-memory chat state plus its persistence effect
//   - Variants: a read-only view of one group's variants
//   - Direction: Prev or Next for SwitchMessageVariant
//
// Every mutation updates a conversation and its chat list summary together
// and then saves the whole chatState record. Operations naming an unknown
// chat, message, or group index are silent no-ops.
package history
