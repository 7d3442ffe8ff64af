// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"time"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// Transcript is the JSON form of a rendered conversation.
type Transcript struct {
	ChatID    string                `json:"chatId"`
	Character model.CharacterConfig `json:"character"`
	Messages  []TranscriptMessage   `json:"messages"`
	Exported  time.Time             `json:"exported"`
}

// TranscriptMessage is one group's active variant.
type TranscriptMessage struct {
	ID        string     `json:"id"`
	Role      model.Role `json:"role"`
	Content   string     `json:"content"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Variant   int        `json:"variant"`
	Variants  int        `json:"variants"`
	// Alternatives holds the inactive variants when requested.
	Alternatives []string `json:"alternatives,omitempty"`
}

// JSONExporter renders a transcript as indented JSON.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// Export renders chat as a Transcript. Variant numbers are 1-based.
func (e *JSONExporter) Export(chat model.ChatHistory) ([]byte, error) {
	if len(chat.Groups) == 0 {
		return nil, ErrEmptyChat
	}

	t := Transcript{
		ChatID:    chat.ID,
		Character: chat.CharacterConfig,
		Messages:  make([]TranscriptMessage, 0, len(chat.Groups)),
		Exported:  e.options.now().UTC(),
	}
	for _, g := range chat.Groups {
		msg, ok := g.Current()
		if !ok {
			continue
		}
		tm := TranscriptMessage{
			ID:       msg.ID,
			Role:     g.Role,
			Content:  msg.Content,
			Variant:  g.CurrentIndex + 1,
			Variants: len(g.Variants),
		}
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			ts := msg.Timestamp.UTC()
			tm.Timestamp = &ts
		}
		if e.options.IncludeVariants {
			for i, v := range g.Variants {
				if i != g.CurrentIndex {
					tm.Alternatives = append(tm.Alternatives, v.Content)
				}
			}
		}
		t.Messages = append(t.Messages, tm)
	}

	return json.MarshalIndent(t, "", "  ")
}

// FileExtension returns the file extension for JSON.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}

// MimeType returns the MIME type for JSON.
func (e *JSONExporter) MimeType() string {
	return "application/json"
}
