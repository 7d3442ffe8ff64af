// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backup exports and imports the chat and character records as one
// JSON document.
//
// The two halves of a backup are independent: on import each is validated
// on its own and applied on its own, so a damaged character roster never
// blocks the chats from being restored, and the other way round.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/pkg/errors"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/schema"
)

// Bundle is the backup envelope.
type Bundle struct {
	ChatState      json.RawMessage `json:"chatState"`
	CharacterState json.RawMessage `json:"characterState"`
	Version        string          `json:"version"`
	ExportDate     time.Time       `json:"exportDate"`
}

// ChatTarget receives an imported chat state.
type ChatTarget interface {
	Replace(ctx context.Context, state model.ChatState)
}

// CharacterTarget receives an imported character state.
type CharacterTarget interface {
	Replace(ctx context.Context, state model.CharacterState)
}

// Result reports which halves of a backup were applied.
type Result struct {
	ChatApplied       bool
	CharactersApplied bool
	Version           string
	ExportDate        time.Time
}

// Export serializes both records into a backup document.
func Export(chat model.ChatState, chars model.CharacterState, version string, now time.Time) ([]byte, error) {
	chatJSON, err := json.Marshal(chat.Clone())
	if err != nil {
		return nil, errors.Wrap(err, "encode chatState")
	}
	charJSON, err := json.Marshal(chars.Clone())
	if err != nil {
		return nil, errors.Wrap(err, "encode characterState")
	}

	out, err := json.MarshalIndent(Bundle{
		ChatState:      chatJSON,
		CharacterState: charJSON,
		Version:        version,
		ExportDate:     now.UTC(),
	}, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "encode backup")
	}
	return out, nil
}

// Import validates data and applies each valid half to its target. A nil
// target skips that half. The returned error joins the reasons any half
// was rejected; a rejected half causes no change.
func Import(ctx context.Context, data []byte, chatTarget ChatTarget, charTarget CharacterTarget) (Result, error) {
	if err := schema.ValidateBackup(data); err != nil {
		return Result{}, errors.Wrap(err, "backup rejected")
	}

	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return Result{}, errors.Wrap(err, "backup rejected")
	}
	res := Result{Version: b.Version, ExportDate: b.ExportDate}

	var chatErr, charErr error

	if chatTarget != nil {
		var state model.ChatState
		chatErr = decodeHalf(b.ChatState, schema.RecordChatState, schema.ValidateChatState, &state)
		if chatErr == nil {
			chatTarget.Replace(ctx, state.Clone())
			res.ChatApplied = true
		}
	}

	if charTarget != nil {
		var state model.CharacterState
		charErr = decodeHalf(b.CharacterState, schema.RecordCharacterState, schema.ValidateCharacterState, &state)
		if charErr == nil {
			charTarget.Replace(ctx, state.Clone())
			res.CharactersApplied = true
		}
	}

	return res, stderrors.Join(chatErr, charErr)
}

// ErrMissingHalf is returned for a backup without one of its records.
var ErrMissingHalf = stderrors.New("record missing from backup")

func decodeHalf(raw json.RawMessage, record string, validate func([]byte) error, into any) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return errors.Wrap(ErrMissingHalf, record)
	}
	if err := validate(raw); err != nil {
		return errors.Wrapf(err, "%s not imported", record)
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return errors.Wrapf(err, "%s not imported", record)
	}
	return nil
}
