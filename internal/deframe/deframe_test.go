// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package deframe

import (
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"
)

const sampleDoc = `{"status":"SUCCESS","body":{"message":"héllo 世界 🎉 {not a brace} \"quoted\" \\ [x]","medias":[{"type":"IMAGE","url":"https://cdn.example/a.png","description":"ünïcode"}],"suggestedFollowUps":[{"content":"more?"},{"content":"日本"}]}}`

// feed runs byte chunks through a decoder and buffer the way a reply stream
// does and returns the frames plus the final remainder.
func feed(chunks [][]byte) ([]Frame, string) {
	dec := NewDecoder()
	buf := NewBuffer()
	var frames []Frame
	for _, c := range chunks {
		frames = append(frames, buf.Push(dec.Decode(c))...)
	}
	frames = append(frames, buf.Push(dec.Finish())...)
	return frames, buf.Remainder()
}

// =============================================================================
// DECODER TESTS
// =============================================================================

func TestDecoder_SplitAtEveryByte(t *testing.T) {
	data := []byte("añb€c𝄞d")

	for i := 0; i <= len(data); i++ {
		dec := NewDecoder()
		first := dec.Decode(data[:i])
		second := dec.Decode(data[i:])
		tail := dec.Finish()

		if !utf8.ValidString(first) || !utf8.ValidString(second) {
			t.Fatalf("split %d: output split a character: %q / %q", i, first, second)
		}
		if got := first + second + tail; got != string(data) {
			t.Errorf("split %d: got %q, want %q", i, got, string(data))
		}
		if dec.Anomalies() != 0 {
			t.Errorf("split %d: Anomalies = %d, want 0", i, dec.Anomalies())
		}
	}
}

func TestDecoder_CarryIsBounded(t *testing.T) {
	dec := NewDecoder()
	full := []byte("𝄞") // 4 bytes

	if out := dec.Decode(full[:3]); out != "" {
		t.Errorf("Decode(partial) = %q, want empty", out)
	}
	if dec.Pending() != 3 {
		t.Errorf("Pending = %d, want 3", dec.Pending())
	}
	if out := dec.Decode(full[3:]); out != "𝄞" {
		t.Errorf("Decode(rest) = %q, want %q", out, "𝄞")
	}
	if dec.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", dec.Pending())
	}
}

func TestDecoder_InvalidBytes(t *testing.T) {
	dec := NewDecoder()

	got := dec.Decode([]byte("a\xffb"))
	if got != "a�b" {
		t.Errorf("Decode = %q, want %q", got, "a�b")
	}
	if dec.Anomalies() != 1 {
		t.Errorf("Anomalies = %d, want 1", dec.Anomalies())
	}
}

func TestDecoder_FinishFlushesCarry(t *testing.T) {
	dec := NewDecoder()
	euro := []byte("€")

	if out := dec.Decode(euro[:2]); out != "" {
		t.Errorf("Decode = %q, want empty", out)
	}

	tail := dec.Finish()
	if tail == "" || !strings.Contains(tail, "�") {
		t.Errorf("Finish = %q, want replacement characters", tail)
	}
	if dec.Pending() != 0 {
		t.Errorf("Pending after Finish = %d, want 0", dec.Pending())
	}
	if dec.Anomalies() == 0 {
		t.Error("expected the truncated character to count as an anomaly")
	}

	// Reusable after Finish.
	if out := dec.Decode([]byte("ok")); out != "ok" {
		t.Errorf("Decode after Finish = %q, want %q", out, "ok")
	}
}

func TestDecoder_EmptyChunk(t *testing.T) {
	dec := NewDecoder()
	if out := dec.Decode(nil); out != "" {
		t.Errorf("Decode(nil) = %q", out)
	}
	if out := dec.Finish(); out != "" {
		t.Errorf("Finish() = %q", out)
	}
}

// =============================================================================
// SCANNER TESTS
// =============================================================================

func TestScan(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		from    int
		wantEnd int
		wantOK  bool
	}{
		{"simple object", `{"a":1}`, 0, 6, true},
		{"array", `[1,2,3]`, 0, 6, true},
		{"nested", `{"a":{"b":[1,{}]}}`, 0, 17, true},
		{"leading whitespace", "  \n{}", 0, 4, true},
		{"brace in string", `{"a":"}"}`, 0, 8, true},
		{"escaped quote", `{"a":"\"}"}`, 0, 10, true},
		{"escaped backslash", `{"a":"\\"}`, 0, 9, true},
		{"stops at first value", `{"a":1}{"b":2}`, 0, 6, true},
		{"from offset", `{"a":1}{"b":2}`, 7, 13, true},
		{"stray closer ignored", `}]{"a":1}`, 0, 8, true},
		{"garbage prefix", `xx{"a":1}`, 0, 8, true},
		{"incomplete", `{"status":"SUC`, 0, -1, false},
		{"incomplete nesting", `{"a":{"b":1}`, 0, -1, false},
		{"bare scalar", `not json at all`, 0, -1, false},
		{"empty", ``, 0, -1, false},
		{"from past end", `{}`, 5, -1, false},
		{"multibyte content", `{"m":"世界"}`, 0, len(`{"m":"世界"}`) - 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end, ok := Scan(tt.text, tt.from)
			if ok != tt.wantOK || end != tt.wantEnd {
				t.Errorf("Scan(%q, %d) = (%d, %v), want (%d, %v)",
					tt.text, tt.from, end, ok, tt.wantEnd, tt.wantOK)
			}
		})
	}
}

// =============================================================================
// BUFFER TESTS
// =============================================================================

func TestBuffer_ArbitrarySplitsReproduceDocument(t *testing.T) {
	data := []byte(sampleDoc)

	// Every single split point, including the ones inside multi-byte characters.
	for i := 0; i <= len(data); i++ {
		frames, rest := feed([][]byte{data[:i], data[i:]})
		if len(frames) != 1 {
			t.Fatalf("split %d: got %d frames, want 1", i, len(frames))
		}
		if frames[0].Raw != sampleDoc {
			t.Fatalf("split %d: Raw = %q", i, frames[0].Raw)
		}
		if rest != "" {
			t.Fatalf("split %d: remainder %q", i, rest)
		}
	}
}

func TestBuffer_RandomChunking(t *testing.T) {
	data := []byte(sampleDoc)
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		var chunks [][]byte
		for pos := 0; pos < len(data); {
			n := 1 + rng.Intn(9)
			if pos+n > len(data) {
				n = len(data) - pos
			}
			chunks = append(chunks, data[pos:pos+n])
			pos += n
		}

		frames, _ := feed(chunks)
		if len(frames) != 1 || frames[0].Raw != sampleDoc {
			t.Fatalf("round %d: got %d frames", round, len(frames))
		}
	}
}

func TestBuffer_ConcatenatedObjects(t *testing.T) {
	buf := NewBuffer()
	frames := buf.Push(`{"a":1}{"a":2}`)

	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	for i, want := range []float64{1, 2} {
		obj, ok := frames[i].Object()
		if !ok {
			t.Fatalf("frame %d is not an object", i)
		}
		if obj["a"] != want {
			t.Errorf("frame %d: a = %v, want %v", i, obj["a"], want)
		}
	}
	if frames[0].Offset != 0 || frames[1].Offset != 7 {
		t.Errorf("offsets = %d, %d, want 0, 7", frames[0].Offset, frames[1].Offset)
	}
	if buf.Len() != 0 {
		t.Errorf("Len = %d, want 0", buf.Len())
	}
}

func TestBuffer_NewlineDelimited(t *testing.T) {
	buf := NewBuffer()
	frames := buf.Push("{\"a\":1}\n{\"a\":2}\n")

	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	if frames[1].Raw != `{"a":2}` {
		t.Errorf("Raw = %q, leading whitespace should be trimmed", frames[1].Raw)
	}
	if frames[1].Offset != 8 {
		t.Errorf("Offset = %d, want 8", frames[1].Offset)
	}
	if buf.Remainder() != "\n" {
		t.Errorf("Remainder = %q, want newline", buf.Remainder())
	}
}

func TestBuffer_RetainsIncomplete(t *testing.T) {
	buf := NewBuffer()

	if frames := buf.Push(`{"a":1}{"status":"SUC`); len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if buf.Remainder() != `{"status":"SUC` {
		t.Errorf("Remainder = %q", buf.Remainder())
	}

	frames := buf.Push(`CESS"}`)
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Offset != 7 {
		t.Errorf("Offset = %d, want 7", frames[0].Offset)
	}
	if buf.Remainder() != "" {
		t.Errorf("Remainder = %q, want empty", buf.Remainder())
	}
}

func TestBuffer_GarbagePrefixRecovery(t *testing.T) {
	buf := NewBuffer()
	frames := buf.Push(`junk{"a":1}`)

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if frames[0].Raw != `{"a":1}` || frames[0].Offset != 4 {
		t.Errorf("frame = %q at %d", frames[0].Raw, frames[0].Offset)
	}
	if buf.Recoveries() != 4 {
		t.Errorf("Recoveries = %d, want 4", buf.Recoveries())
	}
}

func TestBuffer_MultibyteGarbageRecovery(t *testing.T) {
	buf := NewBuffer()
	frames := buf.Push(`é{"a":1}`)

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	// One character skipped, not one byte.
	if buf.Recoveries() != 1 {
		t.Errorf("Recoveries = %d, want 1", buf.Recoveries())
	}
	if frames[0].Offset != len("é") {
		t.Errorf("Offset = %d, want %d", frames[0].Offset, len("é"))
	}
}

func TestBuffer_UnparsableSpanThenValid(t *testing.T) {
	buf := NewBuffer()
	frames := buf.Push(`{1}{"b":2}`)

	var raws []string
	for _, f := range frames {
		raws = append(raws, f.Raw)
	}
	if !reflect.DeepEqual(raws, []string{`{"b":2}`}) {
		t.Errorf("frames = %v, want only the valid object", raws)
	}
	if buf.Recoveries() != 3 {
		t.Errorf("Recoveries = %d, want 3", buf.Recoveries())
	}
}

func TestBuffer_BareTextNeverFrames(t *testing.T) {
	frames, rest := feed([][]byte{[]byte("not json at all")})

	if len(frames) != 0 {
		t.Errorf("got %d frames, want 0", len(frames))
	}
	if rest != "not json at all" {
		t.Errorf("remainder = %q", rest)
	}
}

func TestBuffer_Flush(t *testing.T) {
	buf := NewBuffer()
	buf.Push(`{"partial":`)

	if got := buf.Flush(); got != `{"partial":` {
		t.Errorf("Flush = %q", got)
	}
	if buf.Len() != 0 || buf.Remainder() != "" {
		t.Error("buffer should be empty after Flush")
	}

	frames := buf.Push(`{"x":true}`)
	if len(frames) != 1 || frames[0].Offset != len(`{"partial":`) {
		t.Errorf("offset after Flush not preserved: %+v", frames)
	}
}

func TestBuffer_ArrayFrame(t *testing.T) {
	buf := NewBuffer()
	frames := buf.Push(`[{"a":1},2]`)

	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if _, ok := frames[0].Object(); ok {
		t.Error("array frame should not report as object")
	}
	if arr, ok := frames[0].Value.([]any); !ok || len(arr) != 2 {
		t.Errorf("Value = %#v", frames[0].Value)
	}
}
