// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
)

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter renders a conversation in one format.
type Exporter interface {
	// Export renders chat and returns the content.
	Export(chat model.ChatHistory) ([]byte, error)

	// FileExtension returns the file extension, including the dot.
	FileExtension() string

	// MimeType returns the MIME type of the rendered content.
	MimeType() string
}

// Format names a transcript format.
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// Formats lists the accepted format names.
var Formats = []Format{FormatText, FormatMarkdown, FormatJSON}

// ErrEmptyChat is returned for a conversation without any groups.
var ErrEmptyChat = errors.New("conversation has no messages")

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures rendering.
type Options struct {
	// IncludeMetadata adds a header with the character settings.
	IncludeMetadata bool

	// IncludeTimestamps adds the time of each message.
	IncludeTimestamps bool

	// IncludeVariants lists the inactive variants of each group.
	IncludeVariants bool

	// Now stamps the export time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultOptions returns options for a full Markdown-style transcript.
func DefaultOptions() *Options {
	return &Options{
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Now:               time.Now,
	}
}

func (o *Options) now() time.Time {
	if o.Now == nil {
		return time.Now()
	}
	return o.Now()
}

// ForFormat returns the exporter for format. "md" is accepted for Markdown.
func ForFormat(format Format, opts *Options) (Exporter, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	switch Format(strings.ToLower(string(format))) {
	case FormatText, "":
		return NewTextExporter(opts), nil
	case FormatMarkdown, "md":
		return NewMarkdownExporter(opts), nil
	case FormatJSON:
		return NewJSONExporter(opts), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// FileName suggests a file name for chat rendered by exp.
func FileName(chat model.ChatHistory, exp Exporter, now time.Time) string {
	return fmt.Sprintf("chat_%s_%s%s",
		sanitizeFilename(chat.CharacterConfig.Name),
		now.Format("20060102_150405"),
		exp.FileExtension(),
	)
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names.
func sanitizeFilename(s string) string {
	const maxLen = 50
	runes := []rune(s)
	if len(runes) > maxLen {
		runes = runes[:maxLen]
	}

	out := make([]rune, 0, len(runes))
	for _, r := range runes {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			out = append(out, '-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			out = append(out, '_')
		case r < 32 || r == 127:
			out = append(out, '-')
		default:
			out = append(out, r)
		}
	}

	if len(out) == 0 {
		return "chat"
	}
	return string(out)
}

// roleLabel names the speaker of a group; assistant groups use the
// character name.
func roleLabel(chat model.ChatHistory, role model.Role) string {
	if role == model.RoleAssistant && chat.CharacterConfig.Name != "" {
		return chat.CharacterConfig.Name
	}
	return role.DisplayName()
}

// variantMark returns " [k/n]" for groups with more than one variant.
func variantMark(g model.MessageGroup) string {
	if len(g.Variants) < 2 {
		return ""
	}
	return fmt.Sprintf(" [%d/%d]", g.CurrentIndex+1, len(g.Variants))
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
