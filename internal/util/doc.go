// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small helpers shared by the chat core.
//
// # Key Functions
//
//   - AtomicWriteFile: crash-safe file writing with fsync, used by the file gateway
//   - TruncateWidth: display-width aware truncation for chat list previews
//   - SingleLine: collapses message text into one line for summaries
//
// # Usage
//
//	err := util.AtomicWriteFile(path, data, 0600)
//	preview := util.TruncateWidth(util.SingleLine(item.LastMessage), 40)
package util
