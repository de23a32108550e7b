// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// ATOMIC WRITE TESTS
// =============================================================================

func TestAtomicWriteFile(t *testing.T) {
	big := []byte(strings.Repeat("0123456789abcdef", 64*1024))
	tests := []struct {
		name string
		rel  string
		data []byte
	}{
		{"plain", "config.toml", []byte("[api]\ntransport = \"sse\"\n")},
		{"nested parents", "a/b/c/config.json", []byte(`{"api":{}}`)},
		{"empty", "empty", []byte{}},
		{"one megabyte", "big.bin", big},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.rel)
			require.NoError(t, AtomicWriteFile(path, tt.data, 0600, 0700))

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, len(tt.data), len(got))
			assert.Equal(t, tt.data, got)
		})
	}
}

func TestAtomicWriteFile_ReplacesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history")

	require.NoError(t, AtomicWriteFile(path, []byte("first"), 0600, 0700))
	require.NoError(t, AtomicWriteFile(path, []byte("second"), 0600, 0700))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "history", entries[0].Name())
}

func TestAtomicWriteFile_Permissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permissions")
	}
	path := filepath.Join(t.TempDir(), "private", "token")
	require.NoError(t, AtomicWriteFile(path, []byte("secret"), 0600, 0700))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0700), dirInfo.Mode().Perm())
}

func TestAtomicWrite_WriterFailureKeepsOldContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "history")
	require.NoError(t, AtomicWriteFile(path, []byte("kept"), 0600, 0700))

	boom := errors.New("boom")
	err := AtomicWrite(path, 0600, 0700, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "kept", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be removed")
}

func TestAtomicWrite_StreamsContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lines")
	err := AtomicWrite(path, 0600, 0700, func(w io.Writer) error {
		for _, line := range []string{"/image a.png", "what is my xirr?"} {
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "/image a.png\nwhat is my xirr?\n", string(got))
}

// =============================================================================
// STRING TESTS
// =============================================================================

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"cut with ellipsis", "portfolio summary", 9, "portfo..."},
		{"exact fit", "hello", 5, "hello"},
		{"shorter", "hi", 5, "hi"},
		{"empty", "", 5, ""},
		{"zero max", "hello", 0, ""},
		{"no room for ellipsis", "abcd", 3, "abc"},
		{"emoji kept whole", "hello \U0001F44B world", 7, "hell..."},
		{"cjk fits", "\u4f60\u597d\u4e16\u754c", 4, "\u4f60\u597d\u4e16\u754c"},
		{"rupee", "\u20b9100 gain today", 6, "\u20b910..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TruncateRunes(tt.in, tt.max))
		})
	}
}

func TestStringWidth(t *testing.T) {
	assert.Equal(t, 0, StringWidth(""))
	assert.Equal(t, 5, StringWidth("hello"))
	assert.Equal(t, 6, StringWidth("\u65e5\u672c\u8a9e"))
	assert.Equal(t, 9, StringWidth("hello\u4e16\u754c"))
	assert.Equal(t, 7, StringWidth("\u20b9 1,000"))
}

func TestTruncateWidth(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short", "hello", 10, "hello"},
		{"exact", "hello", 5, "hello"},
		{"cut", "hello world", 8, "hello..."},
		{"tiny", "hello world", 3, "hel"},
		{"cjk", "\u65e5\u672c\u8a9e\u6587", 7, "\u65e5\u672c..."},
		{"empty", "", 5, ""},
		{"zero", "hello", 0, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TruncateWidth(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, StringWidth(got), tt.max)
		})
	}
}

func TestPadRight(t *testing.T) {
	assert.Equal(t, "ab   ", PadRight("ab", 5))
	assert.Equal(t, "\u65e5  ", PadRight("\u65e5", 4))
	assert.Equal(t, "toolong", PadRight("toolong", 3), "never cuts")
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, "first", FirstLine("\n  \n  first  \nsecond"))
	assert.Equal(t, "", FirstLine("   "))
}

// =============================================================================
// CONVERSION TESTS
// =============================================================================

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", FormatBytes(0))
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "5.0 MB", FormatBytes(5*1024*1024))
	assert.Equal(t, "2.0 GB", FormatBytes(2<<30))
}

func TestNumberConversions(t *testing.T) {
	assert.Equal(t, "-42", IntToString(-42))
	assert.Equal(t, "1099511627776", Int64ToString(1<<40))
	assert.Equal(t, "2.3", FloatToStringPrec(2.345, 1))
}
