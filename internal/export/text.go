// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
)

// TextExporter renders a plain-text transcript for the terminal.
type TextExporter struct {
	options *Options
}

// NewTextExporter creates a plain-text exporter.
func NewTextExporter(opts *Options) *TextExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &TextExporter{options: opts}
}

// Export renders chat as "Label:\ncontent" blocks.
func (e *TextExporter) Export(chat model.ChatHistory) ([]byte, error) {
	if len(chat.Groups) == 0 {
		return nil, ErrEmptyChat
	}

	var sb strings.Builder
	name := chat.CharacterConfig.Name
	if name == "" {
		name = "Chat"
	}
	fmt.Fprintf(&sb, "# %s (%s)\n", name, chat.ID)
	if e.options.IncludeMetadata {
		fmt.Fprintf(&sb, "# temperature %g, top_p %g\n", chat.CharacterConfig.Temperature, chat.CharacterConfig.TopP)
	}

	for _, g := range chat.Groups {
		msg, ok := g.Current()
		if !ok {
			continue
		}
		label := roleLabel(chat, g.Role) + variantMark(g)
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			label += " " + formatTimestamp(msg.Timestamp.Local())
		}
		fmt.Fprintf(&sb, "\n%s:\n%s\n", label, strings.TrimRight(msg.Content, "\n"))

		if e.options.IncludeVariants {
			for i, v := range g.Variants {
				if i != g.CurrentIndex {
					fmt.Fprintf(&sb, "  (%d/%d) %s\n", i+1, len(g.Variants), strings.TrimRight(v.Content, "\n"))
				}
			}
		}
	}
	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for plain text.
func (e *TextExporter) FileExtension() string {
	return ".txt"
}

// MimeType returns the MIME type for plain text.
func (e *TextExporter) MimeType() string {
	return "text/plain"
}
