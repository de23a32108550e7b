// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package deframe

// =============================================================================
// FRAME SCANNER
// =============================================================================

// Scan looks for the end of the next JSON object or array in text, starting
// at byte offset from. It returns the offset of the closing bracket that
// brings the nesting depth back to zero.
//
// Quote and escape tracking takes precedence over bracket counting, so
// brackets inside string literals are ignored. Closing brackets seen before
// the first opener are ignored as well; anything else before the opener is
// left for the caller to deal with.
//
// ok is false when the value is still incomplete. That is the normal state
// for a chunk that ends mid-object and is not an error.
func Scan(text string, from int) (end int, ok bool) {
	if from < 0 {
		from = 0
	}

	depth := 0
	inString := false
	escaped := false

	// All delimiters are ASCII, so byte indexing is safe on UTF-8 text:
	// continuation bytes never collide with them.
	for i := from; i < len(text); i++ {
		c := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{', '[':
			depth++
		case '}', ']':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}

	return -1, false
}
