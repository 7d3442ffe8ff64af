// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package schema validates persisted records and backup files before they
// are trusted.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/xeipuuv/gojsonschema"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
)

// Record names used in ValidationError.
const (
	RecordChatState      = "chatState"
	RecordCharacterState = "characterState"
	RecordBackup         = "backup"
)

// ValidationError lists everything wrong with one record.
type ValidationError struct {
	Record   string
	Problems []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Record, strings.Join(e.Problems, "; "))
}

var (
	chatStateSchema      = mustCompile(chatStateJSON)
	characterStateSchema = mustCompile(characterStateJSON)
	backupSchema         = mustCompile(backupJSON)
)

func mustCompile(doc string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(doc))
	if err != nil {
		panic(errors.Wrap(err, "compile embedded schema"))
	}
	return s
}

// structural runs the JSON Schema pass. It returns the problems found, or
// an error if data is not JSON at all.
func structural(s *gojsonschema.Schema, record string, data []byte) error {
	result, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return &ValidationError{
			Record:   record,
			Problems: []string{errors.Wrap(err, "document is not valid JSON").Error()},
		}
	}
	if result.Valid() {
		return nil
	}

	problems := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}
	return &ValidationError{Record: record, Problems: problems}
}

// ValidateChatState checks a serialized chatState record: its shape, and
// then the invariants that tie histories to the chat list.
//
// Role alternation between groups is not enforced here. Deleting a middle
// group legitimately leaves two same-role groups adjacent, and such a state
// must still load; the session layer checks alternation before sending.
func ValidateChatState(data []byte) error {
	if err := structural(chatStateSchema, RecordChatState, data); err != nil {
		return err
	}

	var state model.ChatState
	if err := json.Unmarshal(data, &state); err != nil {
		return &ValidationError{
			Record:   RecordChatState,
			Problems: []string{errors.Wrap(err, "decode").Error()},
		}
	}

	if problems := checkChatState(&state); len(problems) > 0 {
		return &ValidationError{Record: RecordChatState, Problems: problems}
	}
	return nil
}

func checkChatState(s *model.ChatState) []string {
	var problems []string

	listed := make(map[string]bool, len(s.ChatList))
	for _, item := range s.ChatList {
		if listed[item.ID] {
			problems = append(problems, fmt.Sprintf("chatList: duplicate id %q", item.ID))
		}
		listed[item.ID] = true
		if _, ok := s.ChatHistories[item.ID]; !ok {
			problems = append(problems, fmt.Sprintf("chatList: %q has no history", item.ID))
		}
	}

	for key, h := range s.ChatHistories {
		if !listed[key] {
			problems = append(problems, fmt.Sprintf("chatHistories: %q has no chatList entry", key))
		}
		if h.ID != key {
			problems = append(problems, fmt.Sprintf("chatHistories: key %q holds id %q", key, h.ID))
		}
		problems = append(problems, checkGroups(key, h.Groups)...)
	}

	if s.CurrentChatID != "" && !listed[s.CurrentChatID] {
		problems = append(problems, fmt.Sprintf("currentChatId: %q is not a known chat", s.CurrentChatID))
	}
	return problems
}

func checkGroups(chatID string, groups []model.MessageGroup) []string {
	var problems []string
	for i := range groups {
		g := &groups[i]
		where := fmt.Sprintf("chatHistories[%q].groups[%d]", chatID, i)

		if !g.Valid() {
			problems = append(problems, where+": variants must share the group role and currentIndex must be in range")
		}
		switch {
		case i == 0 && g.Role != model.RoleSystem:
			problems = append(problems, where+": first group must be system")
		case i > 0 && g.Role == model.RoleSystem:
			problems = append(problems, where+": system group may only come first")
		}
	}
	return problems
}

// ValidateCharacterState checks a serialized characterState record.
func ValidateCharacterState(data []byte) error {
	return structural(characterStateSchema, RecordCharacterState, data)
}

// ValidateBackup checks the backup envelope only. The chatState and
// characterState halves are validated separately by the caller.
func ValidateBackup(data []byte) error {
	return structural(backupSchema, RecordBackup, data)
}
