// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/schema"
)

// LoadChatState reads the chatState record.
//
// A missing record yields an empty state and no error. A record that fails
// validation, or a failing read, yields an empty state plus the error so
// the caller can log it; the empty state is always usable.
func LoadChatState(ctx context.Context, gw Gateway) (model.ChatState, error) {
	data, err := gw.Get(ctx, KeyChatState)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.NewChatState(), nil
		}
		return model.NewChatState(), fmt.Errorf("load %s: %w", KeyChatState, err)
	}

	if err := schema.ValidateChatState(data); err != nil {
		return model.NewChatState(), err
	}

	var state model.ChatState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.NewChatState(), fmt.Errorf("decode %s: %w", KeyChatState, err)
	}
	// Clone normalizes nil collections
	return state.Clone(), nil
}

// SaveChatState writes a deep copy of state as the chatState record.
func SaveChatState(ctx context.Context, gw Gateway, state model.ChatState) error {
	data, err := json.Marshal(state.Clone())
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyChatState, err)
	}
	if err := gw.Set(ctx, KeyChatState, data); err != nil {
		return fmt.Errorf("save %s: %w", KeyChatState, err)
	}
	return nil
}

// LoadCharacterState reads the characterState record with the same
// fallback rules as LoadChatState.
func LoadCharacterState(ctx context.Context, gw Gateway) (model.CharacterState, error) {
	data, err := gw.Get(ctx, KeyCharacterState)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return model.NewCharacterState(), nil
		}
		return model.NewCharacterState(), fmt.Errorf("load %s: %w", KeyCharacterState, err)
	}

	if err := schema.ValidateCharacterState(data); err != nil {
		return model.NewCharacterState(), err
	}

	var state model.CharacterState
	if err := json.Unmarshal(data, &state); err != nil {
		return model.NewCharacterState(), fmt.Errorf("decode %s: %w", KeyCharacterState, err)
	}
	return state.Clone(), nil
}

// SaveCharacterState writes a deep copy of state as the characterState record.
func SaveCharacterState(ctx context.Context, gw Gateway, state model.CharacterState) error {
	data, err := json.Marshal(state.Clone())
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyCharacterState, err)
	}
	if err := gw.Set(ctx, KeyCharacterState, data); err != nil {
		return fmt.Errorf("save %s: %w", KeyCharacterState, err)
	}
	return nil
}
