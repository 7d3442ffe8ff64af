// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cloud

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/woshixiaobai2019/mirau-chat-ui/internal/logging"
)

const (
	// maxErrorBody caps how much of a failed response is kept for the error.
	maxErrorBody = 4 * 1024

	userAgent = "mirau-chat/0.1.0"
)

// Wire roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// sharedStreamingClient is used when Options.HTTPClient is nil.
// No overall timeout: streams are bounded by the caller's context.
var sharedStreamingClient = &http.Client{
	Transport: &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
	},
}

// Error variables for stream exchanges.
var (
	// ErrNoBody indicates a success status with no response body at all.
	// An empty body is not an error.
	ErrNoBody = errors.New("response has no body")

	// ErrNotSystemFirst indicates a history whose first entry is not a system message.
	ErrNotSystemFirst = errors.New("history must start with a system message")

	// ErrExchangeUsed indicates Run was called on an exchange that already ran.
	ErrExchangeUsed = errors.New("exchange already used")

	// ErrAuthFailed matches a StatusError for HTTP 401.
	ErrAuthFailed = errors.New("authentication failed")
)

// StatusError is returned for a non-2xx response.
type StatusError struct {
	StatusCode int
	// Message is the API error message when the body carried one, otherwise
	// an excerpt of the raw body.
	Message string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("completion endpoint returned HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("completion endpoint returned HTTP %d: %s", e.StatusCode, e.Message)
}

// Is reports whether target is the sentinel matching this status.
func (e *StatusError) Is(target error) bool {
	return target == ErrAuthFailed && e.StatusCode == http.StatusUnauthorized
}

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`    // "user", "assistant", or "system"
	Content string `json:"content"` // The message content
}

// ChatRequest is the body posted to the completions endpoint.
type ChatRequest struct {
	Messages    []ChatMessage `json:"messages"`
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	TopP        float64       `json:"top_p"`
	Stream      bool          `json:"stream"`
}

// apiErrorResponse represents an error response from the API.
type apiErrorResponse struct {
	Error struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Defaults are the request values used when a RequestConfig leaves them unset.
type Defaults struct {
	Model       string
	Temperature float64
	TopP        float64
}

// RequestConfig carries per-exchange values. Set fields win over Defaults.
type RequestConfig struct {
	// SystemPrompt replaces the content of the history's first entry.
	SystemPrompt string
	Model        string
	Temperature  *float64
	TopP         *float64
}

// Float returns a pointer to v, for RequestConfig fields.
func Float(v float64) *float64 { return &v }

// Options configures a Client.
type Options struct {
	// Endpoint is the full chat completions URL.
	Endpoint string
	Defaults Defaults
	// APIKey is sent as a bearer token when non-empty.
	APIKey     string
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client streams chat completions from one endpoint.
type Client struct {
	mu         sync.RWMutex
	endpoint   string
	defaults   Defaults
	apiKey     string
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a client from opts.
func NewClient(opts Options) *Client {
	hc := opts.HTTPClient
	if hc == nil {
		hc = sharedStreamingClient
	}
	return &Client{
		endpoint:   opts.Endpoint,
		defaults:   opts.Defaults,
		apiKey:     opts.APIKey,
		httpClient: hc,
		log:        logging.Component(opts.Logger, "stream"),
	}
}

// Reconfigure swaps the endpoint and defaults. Exchanges already running
// keep the values they started with.
func (c *Client) Reconfigure(endpoint string, defaults Defaults) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.endpoint = endpoint
	c.defaults = defaults
}

// Endpoint returns the current endpoint URL.
func (c *Client) Endpoint() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint
}

// Defaults returns the current request defaults.
func (c *Client) Defaults() Defaults {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.defaults
}

// BuildRequest merges cfg over the client defaults and assembles the
// outgoing message list. The first history entry must be a system message;
// its content is replaced by cfg.SystemPrompt. An empty history yields a
// request holding only the system prompt.
func (c *Client) BuildRequest(history []ChatMessage, cfg RequestConfig) (ChatRequest, error) {
	if len(history) > 0 && history[0].Role != RoleSystem {
		return ChatRequest{}, fmt.Errorf("%w: got %q", ErrNotSystemFirst, history[0].Role)
	}

	d := c.Defaults()
	req := ChatRequest{
		Model:       d.Model,
		Temperature: d.Temperature,
		TopP:        d.TopP,
		Stream:      true,
	}
	if cfg.Model != "" {
		req.Model = cfg.Model
	}
	if cfg.Temperature != nil {
		req.Temperature = *cfg.Temperature
	}
	if cfg.TopP != nil {
		req.TopP = *cfg.TopP
	}

	req.Messages = make([]ChatMessage, 0, max(len(history), 1))
	req.Messages = append(req.Messages, ChatMessage{Role: RoleSystem, Content: cfg.SystemPrompt})
	if len(history) > 1 {
		req.Messages = append(req.Messages, history[1:]...)
	}
	return req, nil
}

// setHeaders sets the required headers for a streaming request.
func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", userAgent)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
}

// open sends the request and returns the response once headers arrive.
// The caller owns resp.Body.
func (c *Client) open(ctx context.Context, body ChatRequest) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint(), bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}

	// Never log headers or bodies.
	c.log.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("completion request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, handleErrorResponse(resp.StatusCode, excerpt)
	}

	// A zero-length body is a stream that ends at once; only a missing one fails.
	if resp.Body == nil {
		return nil, ErrNoBody
	}
	return resp, nil
}

// handleErrorResponse converts a failed response into a StatusError.
func handleErrorResponse(statusCode int, body []byte) error {
	var apiErr apiErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return &StatusError{StatusCode: statusCode, Message: apiErr.Error.Message}
	}
	return &StatusError{StatusCode: statusCode, Message: strings.TrimSpace(string(body))}
}
