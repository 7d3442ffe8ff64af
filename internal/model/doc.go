// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// A conversation (ChatHistory) is an ordered list of MessageGroups. Each group
// is one turn tagged with a single role and holds one or more Message variants
// (the original text plus edits or regenerations). Exactly one variant per
// group is current; the list of current variants in group order is the
// active-variant projection that gets sent to the model.
//
// # Key Types
//
//   - Message: one concrete rendering of a turn
//   - MessageGroup: a turn with its variants and the current index
//   - ChatHistory: a conversation plus the private copy of its character
//   - ChatListItem: denormalized summary row kept in sync with its ChatHistory
//   - ChatState, CharacterState: the two persisted records
//
// # Usage
//
//	hist := model.NewChatHistory(id, character, model.NewMessage(model.RoleSystem, prompt))
//	for _, m := range hist.Flatten() {
//	    fmt.Println(m.Role, m.Content)
//	}
package model
