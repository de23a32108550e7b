// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/arth-chat/internal/logging"
	"github.com/jeranaias/arth-chat/internal/reply"
	"github.com/jeranaias/arth-chat/internal/session"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 * 1024

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// Transport selects how reply bytes are delivered.
type Transport string

const (
	// TransportHTTP reads the chunked body of the POST response.
	TransportHTTP Transport = "http"
	// TransportSSE reads Server-Sent Events, one chunk per data payload.
	TransportSSE Transport = "sse"
	// TransportWebSocket reads WebSocket messages, one chunk per message.
	TransportWebSocket Transport = "websocket"
)

// ParseTransport returns the transport named by s. The empty string is
// TransportHTTP.
func ParseTransport(s string) (Transport, error) {
	switch Transport(strings.ToLower(strings.TrimSpace(s))) {
	case "", TransportHTTP:
		return TransportHTTP, nil
	case TransportSSE:
		return TransportSSE, nil
	case TransportWebSocket, "ws":
		return TransportWebSocket, nil
	default:
		return "", fmt.Errorf("unknown transport %q (want http, sse or websocket)", s)
	}
}

// ClientConfig holds configuration options for the chat API client.
type ClientConfig struct {
	// BaseURL is the API base URL (default: https://co.inwealthera.com/api/user)
	BaseURL string

	// Token is sent as a Bearer token on every request.
	Token string

	// ChatPath is the send-message endpoint (default: /chat)
	ChatPath string

	// UploadPath is the media upload endpoint (default: /media/chat/upload)
	UploadPath string

	// StreamPath is the SSE endpoint (default: /chat/stream)
	StreamPath string

	// WebSocketURL is the WebSocket endpoint. Derived from BaseURL when empty.
	WebSocketURL string

	// Timeout for non-streaming requests such as uploads (default: 30s)
	Timeout time.Duration

	// ConnectTimeout bounds dialing and waiting for response headers on
	// streaming requests (default: 10s)
	ConnectTimeout time.Duration

	// RequestsPerSecond paces outgoing requests (default: 5, burst 5)
	RequestsPerSecond float64

	// Logger receives client logs (default: logging.Logger())
	Logger *slog.Logger
}

// DefaultBaseURL is the production chat API.
const DefaultBaseURL = "https://co.inwealthera.com/api/user"

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:           DefaultBaseURL,
		ChatPath:          "/chat",
		UploadPath:        "/media/chat/upload",
		StreamPath:        "/chat/stream",
		Timeout:           30 * time.Second,
		ConnectTimeout:    10 * time.Second,
		RequestsPerSecond: 5,
	}
}

// fillDefaults sets any zero values to their defaults.
func (c *ClientConfig) fillDefaults() {
	d := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = d.BaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.ChatPath == "" {
		c.ChatPath = d.ChatPath
	}
	if c.UploadPath == "" {
		c.UploadPath = d.UploadPath
	}
	if c.StreamPath == "" {
		c.StreamPath = d.StreamPath
	}
	if c.WebSocketURL == "" {
		c.WebSocketURL = websocketURL(c.BaseURL + c.ChatPath)
	}
	if c.Timeout == 0 {
		c.Timeout = d.Timeout
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = d.RequestsPerSecond
	}
	if c.Logger == nil {
		c.Logger = logging.Logger()
	}
}

// websocketURL swaps the scheme of an http(s) URL for ws(s).
func websocketURL(u string) string {
	switch {
	case strings.HasPrefix(u, "https://"):
		return "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		return "ws://" + strings.TrimPrefix(u, "http://")
	default:
		return u
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the chat API. It sends messages, opens reply streams and
// uploads media.
//
// The Client is thread-safe for concurrent use.
//
// Example:
//
//	client := api.NewClient(&api.ClientConfig{Token: token})
//	ctrl := session.NewController(client.Opener(api.TransportHTTP))
type Client struct {
	config *ClientConfig
	log    *slog.Logger

	// streamClient has no overall timeout; ConnectTimeout and the
	// caller's context bound it.
	httpClient   *http.Client
	streamClient *http.Client

	limiter *rate.Limiter
}

// NewClient creates a new client. A nil config uses DefaultConfig.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	config.fillDefaults()

	dialer := &net.Dialer{Timeout: config.ConnectTimeout, KeepAlive: 30 * time.Second}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		TLSHandshakeTimeout:   config.ConnectTimeout,
		ResponseHeaderTimeout: config.ConnectTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	burst := int(config.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		config:       config,
		log:          config.Logger,
		httpClient:   &http.Client{Timeout: config.Timeout, Transport: transport},
		streamClient: &http.Client{Transport: transport},
		limiter:      rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burst),
	}
}

// Config returns the effective configuration.
func (c *Client) Config() ClientConfig {
	return *c.config
}

// =============================================================================
// CHAT
// =============================================================================

// chatRequest is the body of a send-message request.
type chatRequest struct {
	SessionID  string        `json:"sessionId"`
	CustomerID string        `json:"customerId"`
	Message    string        `json:"message"`
	Medias     []reply.Media `json:"medias"`
}

func newChatRequest(req session.Request) chatRequest {
	medias := req.Medias
	if medias == nil {
		medias = []reply.Media{}
	}
	return chatRequest{
		SessionID:  req.SessionID,
		CustomerID: req.CustomerID,
		Message:    req.Message,
		Medias:     medias,
	}
}

// OpenChat sends a message and returns the chunked response body as a
// reply source.
func (c *Client) OpenChat(ctx context.Context, req session.Request) (reply.Source, error) {
	resp, cancel, err := c.postStream(ctx, c.config.ChatPath, req, "application/json")
	if err != nil {
		return nil, err
	}
	return newBodySource(resp.Body, cancel, defaultChunkSize), nil
}

// OpenChatSSE sends a message to the streaming endpoint and returns a
// source yielding each Server-Sent Event data payload as one chunk.
func (c *Client) OpenChatSSE(ctx context.Context, req session.Request) (reply.Source, error) {
	resp, cancel, err := c.postStream(ctx, c.config.StreamPath, req, "text/event-stream")
	if err != nil {
		return nil, err
	}
	return newSSESource(resp.Body, cancel), nil
}

// postStream posts req and returns the open response. cancel aborts the
// request and must be called once the body is no longer needed.
func (c *Client) postStream(ctx context.Context, path string, req session.Request, accept string) (*http.Response, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}

	body, err := json.Marshal(newChatRequest(req))
	if err != nil {
		return nil, nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	// The request outlives this call, so it gets its own cancel func that
	// the source's Release invokes.
	reqCtx, cancel := context.WithCancel(ctx)
	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		cancel()
		return nil, nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Accept", accept)
	httpReq.Header.Set("Cache-Control", "no-cache")

	c.log.Debug("sending chat message", "session", req.SessionID, "path", path, "medias", len(req.Medias))

	resp, err := c.streamClient.Do(httpReq)
	if err != nil {
		cancel()
		return nil, nil, transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		cancel()
		cerr := statusError(resp.StatusCode, data)
		c.log.Warn("chat request rejected", "status", resp.StatusCode, "error", cerr.Message)
		return nil, nil, cerr
	}

	return resp, cancel, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}
}

// Ping checks that the service answers at BaseURL. Any HTTP response counts
// as reachable; 401 and 403 are returned as errors so a bad token shows.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.config.BaseURL, nil)
	if err != nil {
		return 0, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(httpReq)

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return 0, transportError(err)
	}
	defer resp.Body.Close()
	elapsed := time.Since(start)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return elapsed, statusError(resp.StatusCode, data)
	}
	return elapsed, nil
}

// =============================================================================
// OPENER
// =============================================================================

// Opener returns a session.Opener that opens replies over transport t.
// Unknown transports fall back to TransportHTTP.
func (c *Client) Opener(t Transport) session.Opener {
	switch t {
	case TransportSSE:
		return session.OpenerFunc(c.OpenChatSSE)
	case TransportWebSocket:
		return session.OpenerFunc(c.OpenChatWebSocket)
	default:
		return session.OpenerFunc(c.OpenChat)
	}
}
