// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cloud consumes streamed chat completions from an OpenAI-compatible
// endpoint.
//
// One call to StreamChat is one exchange: a single POST whose response is
// read as a line-oriented event stream and decoded incrementally as bytes
// arrive. Tokens are handed to the caller in arrival order; nothing is
// persisted here.
//
// # Key Types
//
//   - Client: endpoint plus request defaults, safe for concurrent use
//   - Exchange: one request/response cycle with an observable State
//   - LineFramer: rebuilds logical lines across byte-chunk boundaries
//   - ChatMessage: role/content pair in the wire format
//
// # Usage
//
//	client := cloud.NewClient(cloud.Options{Endpoint: endpoint, Defaults: defaults})
//	state := client.StreamChat(ctx, history, cloud.RequestConfig{SystemPrompt: prompt}, cloud.Handlers{
//	    OnToken:    func(tok string) { fmt.Print(tok) },
//	    OnError:    func(err error) { ... },
//	    OnComplete: func() { ... },
//	})
//
// IsWellFormed checks a flattened history before a request is built.
package cloud
