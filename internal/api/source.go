// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// defaultChunkSize is the read size for body sources.
const defaultChunkSize = 4096

// MaxEventSize is the maximum accepted size of one SSE event (1MB).
const MaxEventSize = 1024 * 1024

// ErrEventTooLarge is returned when an SSE event exceeds MaxEventSize.
var ErrEventTooLarge = errors.New("sse event exceeds maximum size")

// =============================================================================
// BODY SOURCE
// =============================================================================

// BodySource yields raw reads from a response body or other reader.
type BodySource struct {
	r       io.ReadCloser
	cancel  context.CancelFunc
	buf     []byte
	once    sync.Once
	release error
}

func newBodySource(r io.ReadCloser, cancel context.CancelFunc, chunkSize int) *BodySource {
	if chunkSize <= 0 {
		chunkSize = defaultChunkSize
	}
	return &BodySource{r: r, cancel: cancel, buf: make([]byte, chunkSize)}
}

// Read returns the next chunk. A done ctx closes the body so that a
// blocked read returns.
func (s *BodySource) Read(ctx context.Context) ([]byte, error) {
	stop := context.AfterFunc(ctx, func() { s.Release() })
	defer stop()

	n, err := s.r.Read(s.buf)
	var chunk []byte
	if n > 0 {
		chunk = append([]byte(nil), s.buf[:n]...)
	}
	if err != nil && ctx.Err() != nil && !errors.Is(err, io.EOF) {
		return chunk, ctx.Err()
	}
	return chunk, err
}

// Release closes the body and aborts the request.
func (s *BodySource) Release() error {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.release = s.r.Close()
	})
	return s.release
}

// ReaderSource returns a source that reads r in chunks of at most
// chunkSize bytes. It is used to replay captured reply bodies. If r is an
// io.Closer it is closed on Release.
func ReaderSource(r io.Reader, chunkSize int) *BodySource {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	return newBodySource(rc, nil, chunkSize)
}

// =============================================================================
// SSE SOURCE
// =============================================================================

// SSEReader parses Server-Sent Events from a stream.
type SSEReader struct {
	reader *bufio.Reader
}

// NewSSEReader creates a new SSE reader from an io.Reader.
func NewSSEReader(r io.Reader) *SSEReader {
	return &SSEReader{reader: bufio.NewReader(r)}
}

// ReadEvent reads the next SSE event from the stream.
// Returns the event type and the data lines joined with "\n".
// Returns io.EOF when the stream ends.
func (s *SSEReader) ReadEvent() (string, []byte, error) {
	var eventType string
	var dataLines [][]byte
	size := 0

	for {
		line, err := s.readLine(MaxEventSize - size + maxFieldOverhead)
		if errors.Is(err, ErrEventTooLarge) {
			return "", nil, err
		}
		if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
			if errors.Is(err, io.EOF) {
				if len(dataLines) > 0 {
					return eventType, bytes.Join(dataLines, []byte("\n")), nil
				}
				return "", nil, io.EOF
			}
			return "", nil, err
		}

		line = bytes.TrimRight(line, "\r\n")

		// Empty line ends the event
		if len(line) == 0 {
			if len(dataLines) > 0 {
				return eventType, bytes.Join(dataLines, []byte("\n")), nil
			}
			continue
		}

		switch {
		case bytes.HasPrefix(line, []byte("event:")):
			eventType = string(bytes.TrimSpace(line[6:]))
		case bytes.HasPrefix(line, []byte("data:")):
			data := line[5:]
			// One optional space after the colon belongs to the field syntax.
			data = bytes.TrimPrefix(data, []byte(" "))
			size += len(data)
			if size > MaxEventSize {
				return "", nil, ErrEventTooLarge
			}
			dataLines = append(dataLines, append([]byte(nil), data...))
		}
		// Ignore other fields (id:, retry:, comments starting with :)
	}
}

// maxFieldOverhead covers the field name, separator and line ending
// around a data value.
const maxFieldOverhead = 16

// readLine reads up to and including the next '\n'. It stops with
// ErrEventTooLarge once more than limit bytes arrive without one, so a line
// that never ends cannot grow the buffer.
func (s *SSEReader) readLine(limit int) ([]byte, error) {
	var line []byte
	for {
		frag, err := s.reader.ReadSlice('\n')
		if len(line)+len(frag) > limit {
			return nil, ErrEventTooLarge
		}
		line = append(line, frag...)
		if !errors.Is(err, bufio.ErrBufferFull) {
			return line, err
		}
	}
}

// sseSource yields one chunk per SSE data payload. A "[DONE]" payload ends
// the reply.
type sseSource struct {
	body   *BodySource
	events *SSEReader
	done   bool
}

func newSSESource(r io.ReadCloser, cancel context.CancelFunc) *sseSource {
	body := newBodySource(r, cancel, defaultChunkSize)
	return &sseSource{body: body, events: NewSSEReader(r)}
}

func (s *sseSource) Read(ctx context.Context) ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	stop := context.AfterFunc(ctx, func() { s.body.Release() })
	defer stop()

	_, data, err := s.events.ReadEvent()
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, io.EOF) {
			return nil, ctx.Err()
		}
		return nil, err
	}
	if bytes.Equal(bytes.TrimSpace(data), []byte("[DONE]")) {
		s.done = true
		return nil, io.EOF
	}
	return data, nil
}

func (s *sseSource) Release() error {
	return s.body.Release()
}
