// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jeranaias/arth-chat/internal/reply"
	"github.com/jeranaias/arth-chat/internal/session"
)

// WebSocket limits.
const (
	wsWriteWait      = 10 * time.Second
	wsMaxMessageSize = 16 * 1024 * 1024
	wsCloseGrace     = time.Second
)

// OpenChatWebSocket dials the WebSocket endpoint, sends the message as one
// JSON text frame and returns a source yielding each received message as
// one chunk. A normal close from the server ends the reply.
func (c *Client) OpenChatWebSocket(ctx context.Context, req session.Request) (reply.Source, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: c.config.ConnectTimeout,
		TLSClientConfig:  &tls.Config{MinVersion: tls.VersionTLS12},
	}

	header := http.Header{}
	if c.config.Token != "" {
		header.Set("Authorization", "Bearer "+c.config.Token)
	}

	c.log.Debug("connecting to WebSocket", "url", c.config.WebSocketURL, "session", req.SessionID)

	conn, resp, err := dialer.DialContext(ctx, c.config.WebSocketURL, header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, statusError(resp.StatusCode, data)
		}
		return nil, transportError(err)
	}
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	conn.SetReadLimit(wsMaxMessageSize)

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(newChatRequest(req)); err != nil {
		conn.Close()
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to send message", Cause: err}
	}
	_ = conn.SetWriteDeadline(time.Time{})

	return &wsSource{conn: conn}, nil
}

// wsSource yields the messages of one WebSocket connection.
type wsSource struct {
	conn    *websocket.Conn
	once    sync.Once
	release error
}

func (s *wsSource) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { s.Release() })
	defer stop()

	_, data, err := s.conn.ReadMessage()
	if err == nil {
		return data, nil
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return nil, io.EOF
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "connection closed by server", Cause: err}
	}
	return nil, err
}

// Release sends a close frame and closes the connection.
func (s *wsSource) Release() error {
	s.once.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(wsCloseGrace))
		s.release = s.conn.Close()
	})
	return s.release
}
