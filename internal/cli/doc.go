// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the mirau command-line interface.
//
// Every command opens the configured store, loads the chat and character
// records concurrently, and closes the store when it returns.
//
// # Commands
//
//	mirau new [--character NAME | --prompt TEXT --name NAME]
//	mirau list
//	mirau use ID
//	mirau show [ID]
//	mirau chat [ID]
//	mirau delete ID
//	mirau pin ID
//	mirau export [FILE]
//	mirau import FILE
//	mirau character set|list|use|delete
//
// Chat ids may be given as any unique prefix.
//
// # Interactive Commands (during chat)
//
//	/regen    Regenerate the last reply as a new variant
//	/prev     Show the previous variant of the last reply
//	/next     Show the next variant of the last reply
//	/help     List commands
//	/quit     Exit chat
//	Ctrl+C    Cancel the reply being generated
//	Ctrl+D    Exit chat
package cli
