// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/cloud"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/history"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/logging"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
)

// Error variables for chat turns.
var (
	// ErrUnknownChat indicates the chat id is not in the history.
	ErrUnknownChat = errors.New("unknown chat")

	// ErrMalformedSequence indicates the conversation does not alternate
	// user and assistant turns after the system prompt.
	ErrMalformedSequence = errors.New("conversation is not a well-formed turn sequence")

	// ErrNothingToRegenerate indicates the last turn is not an assistant reply.
	ErrNothingToRegenerate = errors.New("last turn is not an assistant reply")
)

// Streamer runs one streamed exchange and returns its terminal state.
type Streamer interface {
	StreamChat(ctx context.Context, history []cloud.ChatMessage, cfg cloud.RequestConfig, h cloud.Handlers) cloud.State
}

// Driver runs chat turns against a history manager.
type Driver struct {
	chats  *history.Manager
	stream Streamer
	log    zerolog.Logger
}

// New creates a driver.
func New(chats *history.Manager, stream Streamer, logger zerolog.Logger) *Driver {
	return &Driver{
		chats:  chats,
		stream: stream,
		log:    logging.Component(logger, "session"),
	}
}

// Send appends text as a user message, streams the reply and appends it as
// an assistant message. It returns the id of the stored reply. If the
// stream fails the user message stays and no reply is stored.
func (d *Driver) Send(ctx context.Context, chatID, text string, onToken func(string)) (string, error) {
	if _, ok := d.chats.Chat(chatID); !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownChat, chatID)
	}

	d.chats.AddMessage(ctx, chatID, model.NewMessage(model.RoleUser, text))

	chat, ok := d.chats.Chat(chatID)
	if !ok {
		// deleted concurrently
		return "", fmt.Errorf("%w: %s", ErrUnknownChat, chatID)
	}

	reply, err := d.complete(ctx, chat.CharacterConfig, chat.Flatten(), onToken)
	if err != nil {
		return "", err
	}

	id := d.chats.AddMessage(ctx, chatID, model.NewMessage(model.RoleAssistant, reply))
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownChat, chatID)
	}
	return id, nil
}

// Regenerate streams a new reply for the last assistant turn and stores it
// as a new variant of that turn, branching from the active variant. It
// returns the id of the new variant.
func (d *Driver) Regenerate(ctx context.Context, chatID string, onToken func(string)) (string, error) {
	chat, ok := d.chats.Chat(chatID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownChat, chatID)
	}

	tail := chat.Tail()
	if tail == nil || tail.Role != model.RoleAssistant {
		return "", ErrNothingToRegenerate
	}
	current, ok := tail.Current()
	if !ok {
		return "", ErrNothingToRegenerate
	}

	flat := chat.Flatten()
	reply, err := d.complete(ctx, chat.CharacterConfig, flat[:len(flat)-1], onToken)
	if err != nil {
		return "", err
	}

	id := d.chats.EditMessage(ctx, chatID, current.ID, reply, false)
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrUnknownChat, chatID)
	}
	return id, nil
}

// complete runs one exchange over flat and returns the full reply text.
func (d *Driver) complete(ctx context.Context, character model.CharacterConfig, flat []model.FlatMessage, onToken func(string)) (string, error) {
	wire := toWire(flat)
	if !cloud.IsWellFormed(wire) {
		return "", ErrMalformedSequence
	}

	cfg := cloud.RequestConfig{
		SystemPrompt: character.SystemPrompt,
		Model:        character.Model,
		Temperature:  cloud.Float(character.Temperature),
		TopP:         cloud.Float(character.TopP),
	}

	var (
		reply     strings.Builder
		streamErr error
		tokens    int
	)
	start := time.Now()
	state := d.stream.StreamChat(ctx, wire, cfg, cloud.Handlers{
		OnToken: func(tok string) {
			tokens++
			reply.WriteString(tok)
			if onToken != nil {
				onToken(tok)
			}
		},
		OnError: func(err error) { streamErr = err },
	})

	if state != cloud.StateCompleted {
		if streamErr == nil {
			streamErr = fmt.Errorf("stream ended in state %s", state)
		}
		d.log.Warn().Err(streamErr).Int("tokens", tokens).Msg("turn failed")
		return "", streamErr
	}

	d.log.Debug().Int("tokens", tokens).Dur("duration", time.Since(start)).Msg("turn complete")
	return reply.String(), nil
}

func toWire(flat []model.FlatMessage) []cloud.ChatMessage {
	out := make([]cloud.ChatMessage, len(flat))
	for i, m := range flat {
		out[i] = cloud.ChatMessage{Role: m.Role.String(), Content: m.Content}
	}
	return out
}
