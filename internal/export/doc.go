// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders one conversation as a readable transcript.
//
// A transcript follows the active variant of every group. Groups with more
// than one variant are marked with their position, and can optionally list
// the inactive variants too. Whole-store backups live in package backup.
//
// # Key Types
//
//   - Format: transcript format (text, Markdown, JSON)
//   - Exporter: renders a model.ChatHistory
//   - Options: metadata, timestamps and variant listing
//
// # Usage
//
//	exp, err := export.ForFormat(export.FormatMarkdown, export.DefaultOptions())
//	data, err := exp.Export(chat)
//	name := export.FileName(chat, exp, time.Now())
package export
