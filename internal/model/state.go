// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sort"

	"github.com/huandu/go-clone"
)

// ChatState is the persisted "chatState" record.
type ChatState struct {
	CurrentChatID string                 `json:"currentChatId"`
	ChatList      []ChatListItem         `json:"chatList"`
	ChatHistories map[string]ChatHistory `json:"chatHistories"`
}

// NewChatState returns an empty chat state with non-nil collections.
func NewChatState() ChatState {
	return ChatState{
		ChatList:      []ChatListItem{},
		ChatHistories: map[string]ChatHistory{},
	}
}

// Clone returns a deep copy that shares no slices or maps with s.
func (s ChatState) Clone() ChatState {
	out := clone.Clone(s).(ChatState)
	if out.ChatList == nil {
		out.ChatList = []ChatListItem{}
	}
	if out.ChatHistories == nil {
		out.ChatHistories = map[string]ChatHistory{}
	}
	return out
}

// ItemIndex returns the position of the chat list item with id, or -1.
func (s *ChatState) ItemIndex(id string) int {
	for i := range s.ChatList {
		if s.ChatList[i].ID == id {
			return i
		}
	}
	return -1
}

// SortChatList orders items pinned first, then by most recent update.
func SortChatList(items []ChatListItem) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Pinned != items[j].Pinned {
			return items[i].Pinned
		}
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
}

// CharacterState is the persisted "characterState" record.
type CharacterState struct {
	Characters       []CharacterConfig `json:"characters"`
	CurrentCharacter *CharacterConfig  `json:"currentCharacter"`
}

// NewCharacterState returns an empty roster.
func NewCharacterState() CharacterState {
	return CharacterState{Characters: []CharacterConfig{}}
}

// Clone returns a deep copy that shares nothing with s.
func (s CharacterState) Clone() CharacterState {
	out := clone.Clone(s).(CharacterState)
	if out.Characters == nil {
		out.Characters = []CharacterConfig{}
	}
	return out
}
