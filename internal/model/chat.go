// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import "time"

// =============================================================================
// CHARACTER CONFIG
// =============================================================================

// CharacterConfig describes the persona a conversation talks to. A
// ChatHistory keeps its own copy taken at creation time, so later roster
// edits never rewrite past conversations.
type CharacterConfig struct {
	Name         string  `json:"name"`
	Avatar       string  `json:"avatar"`
	SystemPrompt string  `json:"systemPrompt"`
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"topP"`
	Model        string  `json:"model,omitempty"`
}

// =============================================================================
// CHAT HISTORY
// =============================================================================

// FlatMessage is one entry of the active-variant projection.
type FlatMessage struct {
	Role    Role
	Content string
}

// ChatHistory is a conversation: a system group followed by alternating
// user and assistant groups.
type ChatHistory struct {
	ID              string          `json:"id"`
	CharacterConfig CharacterConfig `json:"characterConfig"`
	Groups          []MessageGroup  `json:"groups"`
}

// NewChatHistory creates a history seeded with a single system group.
func NewChatHistory(id string, character CharacterConfig, seed Message) ChatHistory {
	return ChatHistory{
		ID:              id,
		CharacterConfig: character,
		Groups: []MessageGroup{{
			Role:     RoleSystem,
			Avatar:   character.Avatar,
			Variants: []Message{seed},
		}},
	}
}

// Tail returns a pointer to the last group, or nil for an empty history.
func (h *ChatHistory) Tail() *MessageGroup {
	if len(h.Groups) == 0 {
		return nil
	}
	return &h.Groups[len(h.Groups)-1]
}

// FindMessage locates the group and variant index holding messageID.
func (h *ChatHistory) FindMessage(messageID string) (groupIndex, variantIndex int, ok bool) {
	for gi := range h.Groups {
		if vi := h.Groups[gi].IndexOf(messageID); vi >= 0 {
			return gi, vi, true
		}
	}
	return -1, -1, false
}

// Flatten returns the active-variant projection: each group's current
// variant, in group order. Groups without a valid current variant are skipped.
func (h *ChatHistory) Flatten() []FlatMessage {
	out := make([]FlatMessage, 0, len(h.Groups))
	for i := range h.Groups {
		msg, ok := h.Groups[i].Current()
		if !ok {
			continue
		}
		out = append(out, FlatMessage{Role: msg.Role, Content: msg.Content})
	}
	return out
}

// TailContent returns the current variant text of the last group, or "" if
// there is none.
func (h *ChatHistory) TailContent() string {
	tail := h.Tail()
	if tail == nil {
		return ""
	}
	msg, ok := tail.Current()
	if !ok {
		return ""
	}
	return msg.Content
}

// =============================================================================
// CHAT LIST ITEM
// =============================================================================

// ChatListItem is the summary row for one ChatHistory. It is only ever
// updated on the same mutation path as its history.
type ChatListItem struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar"`
	LastMessage  string    `json:"lastMessage"`
	Pinned       bool      `json:"pinned"`
	SystemPrompt string    `json:"systemPrompt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
