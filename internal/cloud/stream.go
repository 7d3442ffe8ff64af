// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// =============================================================================
// STREAMING CONSTANTS
// =============================================================================

const (
	// readBufferSize is the size of each read from the response body.
	readBufferSize = 4 * 1024

	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

// =============================================================================
// STREAMING TYPES
// =============================================================================

// StreamChunk is one decoded payload line of the response stream.
type StreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// GetContent returns the content from the first choice's delta.
func (c *StreamChunk) GetContent() string {
	if len(c.Choices) > 0 {
		return c.Choices[0].Delta.Content
	}
	return ""
}

// Handlers receive the outcome of one exchange. Exactly one of OnError and
// OnComplete fires, after every OnToken. Nil handlers are skipped.
type Handlers struct {
	OnToken    func(token string)
	OnError    func(err error)
	OnComplete func()
}

func (h Handlers) token(s string) {
	if h.OnToken != nil {
		h.OnToken(s)
	}
}

func (h Handlers) fail(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h Handlers) complete() {
	if h.OnComplete != nil {
		h.OnComplete()
	}
}

// =============================================================================
// EXCHANGE STATE MACHINE
// =============================================================================

// State is the lifecycle position of an Exchange.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateStreaming
	StateCompleted
	StateErrored
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s is Completed or Errored.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateErrored
}

// Exchange is a single request/response cycle. It runs at most once.
type Exchange struct {
	client *Client

	mu    sync.Mutex
	state State
}

// NewExchange returns an idle exchange bound to c.
func (c *Client) NewExchange() *Exchange {
	return &Exchange{client: c}
}

// State returns the exchange's current state.
func (e *Exchange) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Exchange) set(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run performs the exchange and blocks until it reaches a terminal state,
// which it returns. Token callbacks fire synchronously in arrival order.
// Cancelling ctx abandons the read and closes the connection; the
// cancellation is reported through OnError.
func (e *Exchange) Run(ctx context.Context, history []ChatMessage, cfg RequestConfig, h Handlers) State {
	e.mu.Lock()
	if e.state != StateIdle {
		s := e.state
		e.mu.Unlock()
		h.fail(ErrExchangeUsed)
		return s
	}
	e.state = StateRequesting
	e.mu.Unlock()

	if err := e.run(ctx, history, cfg, h); err != nil {
		e.set(StateErrored)
		e.client.log.Debug().Err(err).Msg("exchange failed")
		h.fail(err)
		return StateErrored
	}
	e.set(StateCompleted)
	h.complete()
	return StateCompleted
}

func (e *Exchange) run(ctx context.Context, history []ChatMessage, cfg RequestConfig, h Handlers) error {
	req, err := e.client.BuildRequest(history, cfg)
	if err != nil {
		return err
	}

	resp, err := e.client.open(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	e.set(StateStreaming)
	return e.client.processStream(ctx, resp.Body, h.token)
}

// StreamChat runs one exchange and returns its terminal state.
func (c *Client) StreamChat(ctx context.Context, history []ChatMessage, cfg RequestConfig, h Handlers) State {
	return c.NewExchange().Run(ctx, history, cfg, h)
}

// =============================================================================
// LINE FRAMING
// =============================================================================

// LineFramer splits a byte stream into lines. A chunk boundary may fall
// anywhere, including inside a line; the unterminated tail is held until
// the next Feed.
type LineFramer struct {
	pending []byte
}

// Feed appends chunk and returns every line it completed, without the
// trailing "\n" or "\r\n".
func (f *LineFramer) Feed(chunk []byte) []string {
	f.pending = append(f.pending, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(f.pending, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, string(bytes.TrimSuffix(f.pending[:i], []byte("\r"))))
		f.pending = f.pending[i+1:]
	}

	// Compact so a long stream does not pin every chunk it has seen.
	if len(f.pending) == 0 {
		f.pending = nil
	} else if cap(f.pending) > 2*len(f.pending)+readBufferSize {
		f.pending = append([]byte(nil), f.pending...)
	}
	return lines
}

// Pending returns the unterminated tail held by the framer.
func (f *LineFramer) Pending() string {
	return string(f.pending)
}

// =============================================================================
// STREAM PROCESSING
// =============================================================================

// processStream reads body as it arrives and delivers each token delta.
// It returns nil on the sentinel or at end of stream.
func (c *Client) processStream(ctx context.Context, body io.Reader, onToken func(string)) error {
	var framer LineFramer
	buf := make([]byte, readBufferSize)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			for _, line := range framer.Feed(buf[:n]) {
				if c.handleLine(line, onToken) {
					return nil
				}
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) {
				if rest := framer.Pending(); rest != "" {
					c.log.Debug().Int("bytes", len(rest)).Msg("dropping unterminated final line")
				}
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("stream read failed: %w", err)
		}
	}
}

// handleLine processes one logical line and reports whether it was the
// completion sentinel.
func (c *Client) handleLine(line string, onToken func(string)) bool {
	payload, ok := strings.CutPrefix(line, dataPrefix)
	if !ok {
		return false
	}
	if strings.TrimSpace(payload) == doneSentinel {
		return true
	}

	var chunk StreamChunk
	if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
		c.log.Warn().Err(err).Int("bytes", len(payload)).Msg("skipping malformed stream payload")
		return false
	}
	if content := chunk.GetContent(); content != "" {
		onToken(content)
	}
	return false
}

// =============================================================================
// CHANNEL-BASED STREAMING
// =============================================================================

// EventType tags an Event.
type EventType int

const (
	EventToken EventType = iota
	EventComplete
	EventError
)

// Event is one item of the channel form of an exchange.
type Event struct {
	Type  EventType
	Token string
	Err   error
}

// Events runs one exchange in a goroutine and returns its events in order.
// The last event is EventComplete or EventError, after which the channel is
// closed. Once ctx is cancelled undelivered events are dropped, but the
// channel is still closed.
func (c *Client) Events(ctx context.Context, history []ChatMessage, cfg RequestConfig) <-chan Event {
	events := make(chan Event, 64)

	send := func(ev Event) {
		select {
		case events <- ev:
		case <-ctx.Done():
		}
	}

	go func() {
		defer close(events)
		c.StreamChat(ctx, history, cfg, Handlers{
			OnToken:    func(tok string) { send(Event{Type: EventToken, Token: tok}) },
			OnError:    func(err error) { send(Event{Type: EventError, Err: err}) },
			OnComplete: func() { send(Event{Type: EventComplete}) },
		})
	}()

	return events
}
