// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/model"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id string, role model.Role, content string) model.Message {
	return model.Message{ID: id, Role: role, Content: content, Timestamp: fixedNow}
}

func sampleChat() model.ChatHistory {
	return model.ChatHistory{
		ID: "chat-1",
		CharacterConfig: model.CharacterConfig{
			Name: "Mirau", SystemPrompt: "You are Mirau.", Temperature: 0.7, TopP: 0.9,
		},
		Groups: []model.MessageGroup{
			{Role: model.RoleSystem, Variants: []model.Message{msg("s", model.RoleSystem, "You are Mirau.")}},
			{Role: model.RoleUser, Variants: []model.Message{msg("u", model.RoleUser, "hi")}},
			{Role: model.RoleAssistant, CurrentIndex: 1, Variants: []model.Message{
				msg("a1", model.RoleAssistant, "first"),
				msg("a2", model.RoleAssistant, "second"),
			}},
		},
	}
}

func opts(variants bool) *Options {
	return &Options{IncludeMetadata: true, IncludeTimestamps: true, IncludeVariants: variants, Now: func() time.Time { return fixedNow }}
}

func TestMarkdownExport(t *testing.T) {
	data, err := NewMarkdownExporter(opts(false)).Export(sampleChat())
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, "---\ntitle: Mirau\nchat: chat-1\n"))
	assert.Contains(t, out, "exported: 2025-03-01T12:00:00Z")
	assert.Contains(t, out, "# Mirau\n")
	assert.Contains(t, out, "### You <sub>12:00:00</sub>\n\nhi")
	assert.Contains(t, out, "### Mirau [2/2] <sub>12:00:00</sub>\n\nsecond")
	assert.NotContains(t, out, "first")
	assert.NotContains(t, out, "<details>")
}

func TestMarkdownExportVariants(t *testing.T) {
	data, err := NewMarkdownExporter(opts(true)).Export(sampleChat())
	require.NoError(t, err)
	assert.Contains(t, string(data), "<details><summary>Other variants</summary>\n\n**1/2**\n\nfirst")
}

func TestMarkdownEscapesTitle(t *testing.T) {
	chat := sampleChat()
	chat.CharacterConfig.Name = "my_bot: #1"
	data, err := NewMarkdownExporter(opts(false)).Export(chat)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `title: "my_bot: #1"`)
	assert.Contains(t, out, `# my\_bot: \#1`)
}

func TestTextExport(t *testing.T) {
	data, err := NewTextExporter(&Options{IncludeVariants: true}).Export(sampleChat())
	require.NoError(t, err)
	out := string(data)

	assert.Contains(t, out, "# Mirau (chat-1)\n")
	assert.Contains(t, out, "\nSystem:\nYou are Mirau.\n")
	assert.Contains(t, out, "\nYou:\nhi\n")
	assert.Contains(t, out, "\nMirau [2/2]:\nsecond\n  (1/2) first\n")
	assert.NotContains(t, out, "temperature")
}

func TestJSONExport(t *testing.T) {
	data, err := NewJSONExporter(opts(true)).Export(sampleChat())
	require.NoError(t, err)

	var tr Transcript
	require.NoError(t, json.Unmarshal(data, &tr))
	assert.Equal(t, "chat-1", tr.ChatID)
	assert.Equal(t, "Mirau", tr.Character.Name)
	assert.True(t, tr.Exported.Equal(fixedNow))
	require.Len(t, tr.Messages, 3)

	last := tr.Messages[2]
	assert.Equal(t, "a2", last.ID)
	assert.Equal(t, model.RoleAssistant, last.Role)
	assert.Equal(t, 2, last.Variant)
	assert.Equal(t, 2, last.Variants)
	assert.Equal(t, []string{"first"}, last.Alternatives)
	require.NotNil(t, last.Timestamp)

	data, err = NewJSONExporter(&Options{}).Export(sampleChat())
	require.NoError(t, err)
	assert.NotContains(t, string(data), "timestamp")
	assert.NotContains(t, string(data), "alternatives")
}

func TestEmptyChat(t *testing.T) {
	for _, f := range Formats {
		exp, err := ForFormat(f, nil)
		require.NoError(t, err)
		_, err = exp.Export(model.ChatHistory{ID: "x"})
		assert.ErrorIs(t, err, ErrEmptyChat, string(f))
	}
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format Format
		ext    string
		mime   string
	}{
		{"", ".txt", "text/plain"},
		{FormatText, ".txt", "text/plain"},
		{FormatMarkdown, ".md", "text/markdown"},
		{"md", ".md", "text/markdown"},
		{"JSON", ".json", "application/json"},
	}
	for _, tt := range tests {
		exp, err := ForFormat(tt.format, nil)
		require.NoError(t, err)
		assert.Equal(t, tt.ext, exp.FileExtension())
		assert.Equal(t, tt.mime, exp.MimeType())
	}

	_, err := ForFormat("html", nil)
	assert.Error(t, err)
}

func TestFileName(t *testing.T) {
	exp := NewMarkdownExporter(nil)
	chat := sampleChat()
	chat.CharacterConfig.Name = `a/b: c?`
	assert.Equal(t, "chat_a-b-_c-_20250301_120000.md", FileName(chat, exp, fixedNow))

	chat.CharacterConfig.Name = ""
	assert.Equal(t, "chat_chat_20250301_120000.md", FileName(chat, exp, fixedNow))
}

func TestSanitizeFilenameLength(t *testing.T) {
	long := strings.Repeat("猫", 80)
	assert.Equal(t, 50, len([]rune(sanitizeFilename(long))))
}
