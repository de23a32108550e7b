// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package deframe turns an arbitrarily chunked byte stream into complete
// JSON values.
//
// The assistant endpoint writes one or more JSON objects into a single
// response body with no delimiter between them, and the transport is free to
// split that body anywhere, including in the middle of a multi-byte
// character. This package reassembles the values in three layers.
//
// # Key Types
//
//   - Decoder: incremental UTF-8 decoding that carries split characters
//   - Scan: pure brace/bracket scanner returning the end of the next value
//   - Buffer: accumulates text and emits every complete Frame it can find
//   - Frame: one parsed JSON object or array with its raw span
//
// # Usage
//
//	dec := deframe.NewDecoder()
//	buf := deframe.NewBuffer()
//	for chunk := range chunks {
//	    for _, frame := range buf.Push(dec.Decode(chunk)) {
//	        handle(frame)
//	    }
//	}
//	buf.Push(dec.Finish())
//	leftover := buf.Flush()
//
// # Recovery
//
// A span with balanced brackets that still fails to parse is skipped one
// character at a time. Rescanning is quadratic in the buffered length in the
// worst case, which is fine for chat-sized payloads.
package deframe
