// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/arth-chat/internal/logging"
	"github.com/jeranaias/arth-chat/internal/reply"
	"github.com/jeranaias/arth-chat/internal/session"
)

const successReply = `{"status":"SUCCESS","body":{"message":"Hi","suggestedFollowUps":[{"content":"More?"}]}}`

func testClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	return NewClient(&ClientConfig{
		BaseURL:           baseURL,
		Token:             "tok",
		RequestsPerSecond: 1000,
		Timeout:           5 * time.Second,
		ConnectTimeout:    5 * time.Second,
		Logger:            logging.Discard(),
	})
}

func testRequest() session.Request {
	return session.Request{SessionID: "session_1", CustomerID: "cust_1", Message: "hello"}
}

// readAll drains a source and returns the chunks it yielded.
func readAll(t *testing.T, src reply.Source) []string {
	t.Helper()
	var chunks []string
	for {
		chunk, err := src.Read(t.Context())
		if len(chunk) > 0 {
			chunks = append(chunks, string(chunk))
		}
		if errors.Is(err, io.EOF) {
			return chunks
		}
		require.NoError(t, err)
	}
}

// chunkedHandler writes each part and flushes after it.
func chunkedHandler(parts ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "application/json")
		for _, p := range parts {
			_, _ = io.WriteString(w, p)
			flusher.Flush()
		}
	}
}

// =============================================================================
// CONFIG
// =============================================================================

func TestNewClient_FillsDefaults(t *testing.T) {
	c := NewClient(&ClientConfig{BaseURL: "https://example.com/api/"})
	cfg := c.Config()

	assert.Equal(t, "https://example.com/api", cfg.BaseURL)
	assert.Equal(t, "/chat", cfg.ChatPath)
	assert.Equal(t, "/media/chat/upload", cfg.UploadPath)
	assert.Equal(t, "wss://example.com/api/chat", cfg.WebSocketURL)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.NotNil(t, cfg.Logger)

	d := NewClient(nil).Config()
	assert.Equal(t, DefaultBaseURL, d.BaseURL)
}

func TestParseTransport(t *testing.T) {
	tests := []struct {
		in      string
		want    Transport
		wantErr bool
	}{
		{"", TransportHTTP, false},
		{"HTTP", TransportHTTP, false},
		{"sse", TransportSSE, false},
		{"ws", TransportWebSocket, false},
		{"websocket", TransportWebSocket, false},
		{"grpc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTransport(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// =============================================================================
// HTTP TRANSPORT
// =============================================================================

func TestOpenChat_SendsRequestAndStreamsBody(t *testing.T) {
	var got chatRequest
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		chunkedHandler(`{"status":"SUC`, `CESS","body":{"message":"Hi"}}`)(w, r)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src, err := testClient(t, srv.URL).OpenChat(t.Context(), testRequest())
	require.NoError(t, err)
	defer src.Release()

	chunks := readAll(t, src)
	assert.Equal(t, `{"status":"SUCCESS","body":{"message":"Hi"}}`, strings.Join(chunks, ""))

	assert.Equal(t, "session_1", got.SessionID)
	assert.Equal(t, "cust_1", got.CustomerID)
	assert.Equal(t, "hello", got.Message)
	assert.NotNil(t, got.Medias, "medias is sent as an empty array")
}

func TestOpenChat_ErrorResponses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		check   func(error) bool
		message string
	}{
		{"unauthorized", http.StatusUnauthorized, ``, IsUnauthorized, "API error: 401"},
		{"server message", http.StatusInternalServerError, `{"message":"boom"}`, IsUnavailable, "boom"},
		{"body message", http.StatusBadRequest, `{"status":"FAILED","body":{"message":"bad input"}}`, nil, "bad input"},
		{"gateway timeout", http.StatusGatewayTimeout, `not json`, IsTimeout, "API error: 504"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := testClient(t, srv.URL).OpenChat(t.Context(), testRequest())
			require.Error(t, err)

			var ce *ClientError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.status, ce.StatusCode)
			assert.Equal(t, tt.message, ce.Message)
			if tt.check != nil {
				assert.True(t, tt.check(err), "error type = %v", ce.Type)
			}
		})
	}
}

func TestOpenChat_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := testClient(t, url).OpenChat(t.Context(), testRequest())
	require.Error(t, err)
	assert.True(t, IsUnavailable(err), "got %v", err)
}

func TestOpenChat_ReleaseUnblocksRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":`)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	src, err := testClient(t, srv.URL).OpenChat(t.Context(), testRequest())
	require.NoError(t, err)

	chunk, err := src.Read(t.Context())
	require.NoError(t, err)
	assert.Equal(t, `{"status":`, string(chunk))

	errc := make(chan error, 1)
	go func() {
		_, err := src.Read(t.Context())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, src.Release())

	select {
	case err := <-errc:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Read did not return after Release")
	}
}

func TestOpenChat_ContextCancelUnblocksRead(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	src, err := testClient(t, srv.URL).OpenChat(t.Context(), testRequest())
	require.NoError(t, err)
	defer src.Release()

	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOpener_EndToEnd(t *testing.T) {
	srv := httptest.NewServer(chunkedHandler(successReply[:17], successReply[17:40], successReply[40:]))
	defer srv.Close()

	ctrl := session.NewController(testClient(t, srv.URL).Opener(TransportHTTP), session.WithLogger(logging.Discard()))
	defer ctrl.Close()

	var structured *reply.Payload
	terminal := false
	h, err := ctrl.Send(t.Context(), testRequest(), session.Callbacks{
		OnStructured: func(p *reply.Payload) { structured = p },
		OnTerminal:   func() { terminal = true },
	})
	require.NoError(t, err)
	require.NoError(t, h.Wait(t.Context()))

	require.NotNil(t, structured)
	assert.Equal(t, "Hi", structured.Message)
	assert.True(t, terminal)

	msg := h.Reply()
	assert.Equal(t, "Hi", msg.Content)
	assert.Equal(t, []string{"More?"}, msg.FollowUps)
}

// =============================================================================
// SSE TRANSPORT
// =============================================================================

func TestSSEReader(t *testing.T) {
	input := ": keep-alive\n" +
		"event: reply\n" +
		"data: line one\n" +
		"data:line two\n" +
		"id: 7\n" +
		"\n" +
		"\n" +
		"data: tail"

	r := NewSSEReader(strings.NewReader(input))

	typ, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "reply", typ)
	assert.Equal(t, "line one\nline two", string(data))

	_, data, err = r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, "tail", string(data))

	_, _, err = r.ReadEvent()
	assert.ErrorIs(t, err, io.EOF)
}

func TestSSEReader_TooLarge(t *testing.T) {
	big := "data: " + strings.Repeat("x", MaxEventSize+1) + "\n\n"
	_, _, err := NewSSEReader(strings.NewReader(big)).ReadEvent()
	assert.ErrorIs(t, err, ErrEventTooLarge)
}

// endlessReader yields the same bytes forever and counts what was read.
type endlessReader struct {
	b    byte
	read int
}

func (r *endlessReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = r.b
	}
	r.read += len(p)
	return len(p), nil
}

func TestSSEReader_UnterminatedLineIsBounded(t *testing.T) {
	src := &endlessReader{b: 'x'}
	r := NewSSEReader(io.MultiReader(strings.NewReader("data: "), src))

	_, _, err := r.ReadEvent()
	require.ErrorIs(t, err, ErrEventTooLarge)
	assert.LessOrEqual(t, src.read, 2*MaxEventSize, "reader should stop near the event limit")
}

func TestSSEReader_LongLineWithinLimit(t *testing.T) {
	payload := strings.Repeat("y", 64*1024)
	r := NewSSEReader(strings.NewReader("data: " + payload + "\r\n\n"))

	_, data, err := r.ReadEvent()
	require.NoError(t, err)
	assert.Equal(t, payload, string(data))
}

func TestOpenChatSSE(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /chat/stream", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, part := range []string{`{"status":"SUC`, `CESS","body":{"message":"Hi"}}`, `[DONE]`} {
			_, _ = io.WriteString(w, "data: "+part+"\n\n")
			flusher.Flush()
		}
		_, _ = io.WriteString(w, "data: ignored after done\n\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	src, err := testClient(t, srv.URL).OpenChatSSE(t.Context(), testRequest())
	require.NoError(t, err)
	defer src.Release()

	assert.Equal(t, []string{`{"status":"SUC`, `CESS","body":{"message":"Hi"}}`}, readAll(t, src))
}

// =============================================================================
// WEBSOCKET TRANSPORT
// =============================================================================

func TestOpenChatWebSocket(t *testing.T) {
	upgrader := websocket.Upgrader{}
	received := make(chan chatRequest, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		var req chatRequest
		if !assert.NoError(t, conn.ReadJSON(&req)) {
			return
		}
		received <- req

		for _, part := range []string{`{"status":"SUC`, `CESS","body":{"message":"Hi"}}`} {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(part))
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	src, err := testClient(t, srv.URL).OpenChatWebSocket(t.Context(), testRequest())
	require.NoError(t, err)
	defer src.Release()

	assert.Equal(t, []string{`{"status":"SUC`, `CESS","body":{"message":"Hi"}}`}, readAll(t, src))

	req := <-received
	assert.Equal(t, "hello", req.Message)
	assert.Equal(t, "session_1", req.SessionID)
}

func TestOpenChatWebSocket_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"message":"token expired"}`)
	}))
	defer srv.Close()

	_, err := testClient(t, srv.URL).OpenChatWebSocket(t.Context(), testRequest())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Contains(t, err.Error(), "token expired")
}

// =============================================================================
// UPLOAD
// =============================================================================

func uploadServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /media/chat/upload", func(w http.ResponseWriter, r *http.Request) {
		var req uploadRequest
		if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&req)) {
			return
		}
		assert.Equal(t, "session_1", req.SessionID)
		assert.Equal(t, "image", req.Media.Type)

		switch req.Media.Data {
		case "bad.png":
			_, _ = io.WriteString(w, `{"status":"FAILED","message":"unsupported file"}`)
		case "down.png":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = io.WriteString(w, `{"status":"SUCCESS","body":{"url":"https://cdn/`+req.Media.Data+`"}}`)
		}
	})
	return httptest.NewServer(mux)
}

func TestUploadMedia(t *testing.T) {
	srv := uploadServer(t)
	defer srv.Close()
	c := testClient(t, srv.URL)

	resp, err := c.UploadMedia(t.Context(), "session_1", "cust_1", ImageDescriptor("/tmp/shots/a.png"))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn/a.png", resp.URL())

	_, err = c.UploadMedia(t.Context(), "session_1", "cust_1", ImageDescriptor("bad.png"))
	require.Error(t, err)
	assert.Equal(t, "unsupported file", err.Error())
}

func TestUploadAll_DropsFailures(t *testing.T) {
	srv := uploadServer(t)
	defer srv.Close()

	descs := []MediaDescriptor{
		ImageDescriptor("a.png"),
		ImageDescriptor("bad.png"),
		ImageDescriptor("b.png"),
		ImageDescriptor("down.png"),
	}
	medias, failures, err := testClient(t, srv.URL).UploadAll(t.Context(), "session_1", "cust_1", descs)
	require.NoError(t, err)

	require.Len(t, medias, 2)
	assert.Equal(t, reply.Media{Type: reply.MediaTypeImage, URL: "https://cdn/a.png", Description: DefaultMediaDescription}, medias[0])
	assert.Equal(t, "https://cdn/b.png", medias[1].URL)
	assert.Len(t, failures, 2)
}

// =============================================================================
// READER SOURCE
// =============================================================================

func TestReaderSource_Chunks(t *testing.T) {
	src := ReaderSource(strings.NewReader("abcdefg"), 3)
	assert.Equal(t, []string{"abc", "def", "g"}, readAll(t, src))
	assert.NoError(t, src.Release())
	assert.NoError(t, src.Release())
}

func TestReaderSource_ThroughStream(t *testing.T) {
	var events []reply.EventType
	s := reply.NewStream(ReaderSource(strings.NewReader(successReply), 5), func(ev reply.Event) {
		events = append(events, ev.Type)
	})
	require.NoError(t, s.Run(t.Context()))

	require.NotEmpty(t, events)
	assert.Contains(t, events, reply.EventStructured)
	assert.Equal(t, reply.EventTerminal, events[len(events)-1])
}
