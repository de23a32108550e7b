// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging provides the structured logger shared by arth packages.
//
// It wraps log/slog with a package-level default logger whose level, format
// and destination can be changed at runtime. The initial level comes from
// the LOG_LEVEL environment variable; the CLI overrides it from config.
//
// Components that need a logger accept a *slog.Logger and fall back to
// Logger() when none is given.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Output formats accepted by SetFormat.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var (
	level = new(slog.LevelVar)

	mu     sync.Mutex
	output io.Writer = os.Stderr
	format           = FormatText

	current atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(ParseLevel(os.Getenv("LOG_LEVEL")))
	rebuild()
}

// ParseLevel converts a level name to a slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// rebuild swaps in a new handler. Callers must not hold mu.
func rebuild() {
	mu.Lock()
	defer mu.Unlock()

	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(output, opts)
	} else {
		h = slog.NewTextHandler(output, opts)
	}
	current.Store(slog.New(h))
}

// SetLevel changes the minimum level for all loggers derived from Logger().
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level returns the current minimum level.
func Level() slog.Level {
	return level.Level()
}

// SetVerbose switches between debug and info.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// SetOutput redirects log output. A nil writer discards everything.
func SetOutput(w io.Writer) {
	if w == nil {
		w = io.Discard
	}
	mu.Lock()
	output = w
	mu.Unlock()
	rebuild()
}

// SetFormat selects text or JSON output.
func SetFormat(f string) {
	f = strings.ToLower(strings.TrimSpace(f))
	if f != FormatJSON {
		f = FormatText
	}
	mu.Lock()
	format = f
	mu.Unlock()
	rebuild()
}

// Configure applies level, format and output in one call.
func Configure(levelName, f string, w io.Writer) {
	SetLevel(ParseLevel(levelName))
	mu.Lock()
	if w != nil {
		output = w
	}
	if strings.EqualFold(f, FormatJSON) {
		format = FormatJSON
	} else {
		format = FormatText
	}
	mu.Unlock()
	rebuild()
}

// Logger returns the current default logger.
func Logger() *slog.Logger {
	return current.Load()
}

// With returns the default logger with extra attributes attached.
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Debug logs at debug level on the default logger.
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// DebugContext logs at debug level with a context.
func DebugContext(ctx context.Context, msg string, args ...any) {
	Logger().DebugContext(ctx, msg, args...)
}

// Info logs at info level on the default logger.
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs at warn level on the default logger.
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs at error level on the default logger.
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}
