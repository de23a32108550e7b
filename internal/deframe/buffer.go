// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package deframe

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// =============================================================================
// FRAME
// =============================================================================

// Frame is one complete JSON value extracted from the stream.
type Frame struct {
	// Offset is the position of Raw in the whole stream text, in bytes.
	Offset int

	// Raw is the scanned span with leading whitespace removed.
	Raw string

	// Value is the encoding/json decoding of Raw.
	Value any
}

// Object returns the frame value as a JSON object, if it is one.
func (f Frame) Object() (map[string]any, bool) {
	m, ok := f.Value.(map[string]any)
	return m, ok
}

// =============================================================================
// FRAME BUFFER
// =============================================================================

// Buffer accumulates decoded text and cuts it into frames.
//
// Text that does not yet form a complete value is retained until the next
// Push. A balanced span that still fails to parse is skipped one character
// at a time until something parses or the scan runs out of input.
//
// A Buffer is not safe for concurrent use.
type Buffer struct {
	text       string
	base       int // stream offset of text[0]
	recoveries int
}

// NewBuffer creates an empty frame buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Push appends text and returns every frame that is now complete, in order.
func (b *Buffer) Push(text string) []Frame {
	if text != "" {
		b.text += text
	}

	var frames []Frame
	cursor := 0

	for cursor < len(b.text) {
		end, ok := Scan(b.text, cursor)
		if !ok {
			break
		}

		span := b.text[cursor : end+1]
		var value any
		if err := json.Unmarshal([]byte(span), &value); err != nil {
			// Skip one character, never one byte, so the retained text stays
			// valid UTF-8.
			_, size := utf8.DecodeRuneInString(b.text[cursor:])
			cursor += size
			b.recoveries++
			continue
		}

		raw := strings.TrimLeft(span, " \t\r\n")
		frames = append(frames, Frame{
			Offset: b.base + cursor + len(span) - len(raw),
			Raw:    raw,
			Value:  value,
		})
		cursor = end + 1
	}

	if cursor > 0 {
		b.text = b.text[cursor:]
		b.base += cursor
	}
	return frames
}

// Remainder returns the text retained for the next Push.
func (b *Buffer) Remainder() string {
	return b.text
}

// Flush returns the retained text and clears it.
func (b *Buffer) Flush() string {
	rest := b.text
	b.base += len(b.text)
	b.text = ""
	return rest
}

// Len returns the number of bytes currently retained.
func (b *Buffer) Len() int {
	return len(b.text)
}

// Recoveries returns how many times a balanced but unparsable span was
// skipped.
func (b *Buffer) Recoveries() int {
	return b.recoveries
}
