// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter renders a transcript as Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export renders chat as Markdown with optional YAML frontmatter.
func (e *MarkdownExporter) Export(chat model.ChatHistory) ([]byte, error) {
	if len(chat.Groups) == 0 {
		return nil, ErrEmptyChat
	}

	var sb strings.Builder
	character := chat.CharacterConfig
	title := character.Name
	if title == "" {
		title = "Chat"
	}

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(title))
		fmt.Fprintf(&sb, "chat: %s\n", chat.ID)
		if character.Model != "" {
			fmt.Fprintf(&sb, "model: %s\n", escapeYAML(character.Model))
		}
		fmt.Fprintf(&sb, "temperature: %g\n", character.Temperature)
		fmt.Fprintf(&sb, "top_p: %g\n", character.TopP)
		fmt.Fprintf(&sb, "messages: %d\n", len(chat.Groups))
		fmt.Fprintf(&sb, "exported: %s\n", e.options.now().Format(time.RFC3339))
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(title))

	for i, g := range chat.Groups {
		msg, ok := g.Current()
		if !ok {
			continue
		}

		label := escapeMarkdown(roleLabel(chat, g.Role)) + variantMark(g)
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if e.options.IncludeVariants && len(g.Variants) > 1 {
			e.writeVariants(&sb, g)
		}

		if i < len(chat.Groups)-1 {
			sb.WriteString("---\n\n")
		}
	}

	return []byte(sb.String()), nil
}

// writeVariants lists the inactive variants of g in a collapsed block.
func (e *MarkdownExporter) writeVariants(sb *strings.Builder, g model.MessageGroup) {
	sb.WriteString("<details><summary>Other variants</summary>\n\n")
	for i, v := range g.Variants {
		if i == g.CurrentIndex {
			continue
		}
		fmt.Fprintf(sb, "**%d/%d**\n\n%s\n\n", i+1, len(g.Variants), strings.TrimSpace(v.Content))
	}
	sb.WriteString("</details>\n\n")
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes a frontmatter value when it holds special characters.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
