// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package roster keeps the list of characters a user can start chats with.
package roster

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/logging"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
	"github.com/woshixiaobai2019/mirau-chat-ui/internal/storage"
)

// ErrEmptyName is returned by UpdateCharacter for a character without a name.
var ErrEmptyName = errors.New("character name is required")

// Roster holds the characterState record and saves it after each change.
type Roster struct {
	gw  storage.Gateway
	log zerolog.Logger

	mu    sync.Mutex
	state model.CharacterState
}

// New creates an empty roster over gw.
func New(gw storage.Gateway, logger zerolog.Logger) *Roster {
	return &Roster{
		gw:    gw,
		log:   logging.Component(logger, "roster"),
		state: model.NewCharacterState(),
	}
}

// Load reads the persisted roster. On failure the roster is empty and the
// error is returned after being logged.
func (r *Roster) Load(ctx context.Context) error {
	state, err := storage.LoadCharacterState(ctx, r.gw)
	if err != nil {
		r.log.Warn().Err(err).Msg("character state unreadable, starting empty")
	}
	r.mu.Lock()
	r.state = state
	r.mu.Unlock()
	return err
}

// save persists the current state. Callers must hold mu.
func (r *Roster) save(ctx context.Context) {
	if err := storage.SaveCharacterState(ctx, r.gw, r.state); err != nil {
		r.log.Error().Err(err).Msg("failed to persist character state")
	}
}

// UpdateCharacter adds c, or replaces the character with the same name.
// If the replaced character is the current one, the current one follows.
func (r *Roster) UpdateCharacter(ctx context.Context, c model.CharacterConfig) error {
	if c.Name == "" {
		return ErrEmptyName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i := r.index(c.Name); i >= 0 {
		r.state.Characters[i] = c
	} else {
		r.state.Characters = append(r.state.Characters, c)
	}
	if r.state.CurrentCharacter != nil && r.state.CurrentCharacter.Name == c.Name {
		cur := c
		r.state.CurrentCharacter = &cur
	}
	r.save(ctx)
	return nil
}

// SelectCharacter makes the named character current. Unknown names are
// ignored.
func (r *Roster) SelectCharacter(ctx context.Context, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(name)
	if i < 0 {
		return
	}
	cur := r.state.Characters[i]
	r.state.CurrentCharacter = &cur
	r.save(ctx)
}

// DeleteCharacter removes the named character. If it was current, the
// first remaining character becomes current, or none.
func (r *Roster) DeleteCharacter(ctx context.Context, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.index(name)
	if i >= 0 {
		r.state.Characters = append(r.state.Characters[:i], r.state.Characters[i+1:]...)
	}
	if r.state.CurrentCharacter != nil && r.state.CurrentCharacter.Name == name {
		r.state.CurrentCharacter = nil
		if len(r.state.Characters) > 0 {
			cur := r.state.Characters[0]
			r.state.CurrentCharacter = &cur
		}
	}
	r.save(ctx)
}

// Current returns the current character.
func (r *Roster) Current() (model.CharacterConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.CurrentCharacter == nil {
		return model.CharacterConfig{}, false
	}
	return *r.state.CurrentCharacter, true
}

// Character returns the character with the given name.
func (r *Roster) Character(name string) (model.CharacterConfig, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.index(name); i >= 0 {
		return r.state.Characters[i], true
	}
	return model.CharacterConfig{}, false
}

// Characters returns a copy of all characters in insertion order.
func (r *Roster) Characters() []model.CharacterConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.CharacterConfig(nil), r.state.Characters...)
}

// Snapshot returns a deep copy of the roster state.
func (r *Roster) Snapshot() model.CharacterState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone()
}

// Replace swaps in a whole new state and persists it.
func (r *Roster) Replace(ctx context.Context, state model.CharacterState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = state.Clone()
	r.save(ctx)
}

func (r *Roster) index(name string) int {
	for i := range r.state.Characters {
		if r.state.Characters[i].Name == name {
			return i
		}
	}
	return -1
}
