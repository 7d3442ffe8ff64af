// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives one chat turn from user input to stored reply.
//
// A turn reads the conversation's active-variant projection from the
// history manager, checks it is well formed, streams a completion with the
// conversation's own character settings, and stores the finished text.
// Nothing is stored for a turn whose stream fails.
//
// # Key Types
//
//   - Driver: binds a history manager to a Streamer
//   - Streamer: anything that runs one streamed exchange, normally *cloud.Client
//
// # Usage
//
//	d := session.New(chats, client, logger)
//	reply, err := d.Send(ctx, chatID, "hello", func(tok string) { fmt.Print(tok) })
//	// regenerate the last reply as a new variant
//	reply, err = d.Regenerate(ctx, chatID, printToken)
package session
