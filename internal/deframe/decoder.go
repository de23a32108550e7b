// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package deframe

import (
	"errors"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// =============================================================================
// BYTE DECODER
// =============================================================================

// Decoder converts raw chunks into text without ever splitting a character
// across two outputs. A chunk that ends mid-sequence leaves at most three
// bytes behind; they are prepended to the next chunk.
//
// Invalid sequences are replaced with U+FFFD and counted as anomalies.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	t         transform.Transformer
	carry     []byte
	anomalies int
}

// NewDecoder creates a UTF-8 stream decoder.
func NewDecoder() *Decoder {
	return &Decoder{t: unicode.UTF8.NewDecoder()}
}

// Decode decodes one chunk. Bytes of an incomplete trailing character are
// held back until the next call to Decode or Finish.
func (d *Decoder) Decode(chunk []byte) string {
	if len(chunk) == 0 && len(d.carry) == 0 {
		return ""
	}

	src := chunk
	if len(d.carry) > 0 {
		src = make([]byte, 0, len(d.carry)+len(chunk))
		src = append(src, d.carry...)
		src = append(src, chunk...)
	}

	out, n := d.transform(src, false)

	// Copy the tail so the caller's chunk can be reused.
	d.carry = append(d.carry[:0], src[n:]...)
	return out
}

// Finish flushes any held-back bytes as replacement characters and resets
// the decoder for reuse.
func (d *Decoder) Finish() string {
	defer d.t.Reset()
	if len(d.carry) == 0 {
		return ""
	}
	out, _ := d.transform(d.carry, true)
	d.carry = d.carry[:0]
	return out
}

// Pending returns the number of bytes currently held back.
func (d *Decoder) Pending() int {
	return len(d.carry)
}

// Anomalies returns how many chunks contained invalid byte sequences.
func (d *Decoder) Anomalies() int {
	return d.anomalies
}

// transform runs the UTF-8 transformer over src and returns the decoded text
// and the number of source bytes consumed.
func (d *Decoder) transform(src []byte, atEOF bool) (string, int) {
	// Each invalid byte becomes a 3-byte U+FFFD, so 3x is the upper bound.
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	var out []byte
	consumed := 0

	for {
		nDst, nSrc, err := d.t.Transform(dst, src[consumed:], atEOF)
		out = append(out, dst[:nDst]...)
		consumed += nSrc

		if errors.Is(err, transform.ErrShortDst) {
			if nDst == 0 && nSrc == 0 {
				dst = make([]byte, 2*len(dst))
			}
			continue
		}
		// nil or ErrShortSrc: the remainder is an incomplete character.
		break
	}

	if !utf8.Valid(src[:consumed]) {
		d.anomalies++
	}
	return string(out), consumed
}
