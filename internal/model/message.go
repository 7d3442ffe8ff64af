// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is one variant of a conversational turn. Once a newer variant
// supersedes it, it is never modified again.
type Message struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	IsEditing bool `json:"isEditing,omitempty"`
	IsPending bool `json:"isPending,omitempty"`
}

// NewMessage creates a message with a fresh ID and the current time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        NewID(),
		Content:   content,
		Role:      role,
		Timestamp: time.Now(),
	}
}

// NewID returns a new opaque identifier for chats and messages.
func NewID() string {
	return uuid.NewString()
}

// =============================================================================
// MESSAGE GROUP
// =============================================================================

// MessageGroup is one turn of a conversation. Every variant shares the
// group's Role and 0 <= CurrentIndex < len(Variants).
type MessageGroup struct {
	Role         Role      `json:"role"`
	Avatar       string    `json:"avatar"`
	Variants     []Message `json:"variants"`
	CurrentIndex int       `json:"currentIndex"`
}

// Current returns the selected variant. The second result is false for a
// group that violates its invariants (no variants or an index out of range).
func (g *MessageGroup) Current() (Message, bool) {
	if g.CurrentIndex < 0 || g.CurrentIndex >= len(g.Variants) {
		return Message{}, false
	}
	return g.Variants[g.CurrentIndex], true
}

// IndexOf returns the position of the variant with the given ID, or -1.
func (g *MessageGroup) IndexOf(messageID string) int {
	for i := range g.Variants {
		if g.Variants[i].ID == messageID {
			return i
		}
	}
	return -1
}

// Valid checks the group invariants.
func (g *MessageGroup) Valid() bool {
	if len(g.Variants) == 0 || g.CurrentIndex < 0 || g.CurrentIndex >= len(g.Variants) {
		return false
	}
	for _, v := range g.Variants {
		if v.Role != g.Role {
			return false
		}
	}
	return true
}
