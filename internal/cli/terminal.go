// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// terminal.go - Terminal detection for arth output.
//
// Colors are used only when stdout is a terminal, unless the ui.color
// setting or NO_COLOR / FORCE_COLOR say otherwise.

package cli

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

// =============================================================================
// TTY DETECTION
// =============================================================================

// IsTTY returns true if stdin is a terminal.
func IsTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// IsStdoutTTY returns true if stdout is a terminal.
func IsStdoutTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// =============================================================================
// TERMINAL WIDTH
// =============================================================================

const (
	// DefaultTerminalWidth is the fallback width when detection fails
	DefaultTerminalWidth = 80

	// MinTerminalWidth is the minimum width used for wrapping
	MinTerminalWidth = 40
)

// GetTerminalWidth returns the current terminal width, or
// DefaultTerminalWidth if it cannot be determined.
func GetTerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return DefaultTerminalWidth
	}
	if width < MinTerminalWidth {
		return MinTerminalWidth
	}
	return width
}

// =============================================================================
// COLOR OUTPUT CONTROL
// =============================================================================

// Color modes accepted by SetColorMode, matching ui.color.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

var (
	colorMu      sync.Mutex
	colorMode    = ColorAuto
	colorsCached *bool
)

// SetColorMode sets the color mode and reconfigures lipgloss.
func SetColorMode(mode string) {
	colorMu.Lock()
	colorMode = mode
	colorsCached = nil
	colorMu.Unlock()
	lipgloss.SetColorProfile(GetColorProfile())
}

// ColorsEnabled returns true if colored output should be used.
// NO_COLOR wins over everything, then the color mode, then FORCE_COLOR, then
// TTY detection. See https://no-color.org/.
func ColorsEnabled() bool {
	colorMu.Lock()
	defer colorMu.Unlock()
	if colorsCached != nil {
		return *colorsCached
	}

	enabled := resolveColors(colorMode, os.Getenv("NO_COLOR") != "", os.Getenv("FORCE_COLOR") != "", IsStdoutTTY)
	colorsCached = &enabled
	return enabled
}

func resolveColors(mode string, noColor, forceColor bool, isTTY func() bool) bool {
	switch {
	case noColor:
		return false
	case mode == ColorNever:
		return false
	case mode == ColorAlways, forceColor:
		return true
	default:
		return isTTY()
	}
}

// ForceColorsEnabled overrides color detection. Tests only.
func ForceColorsEnabled(enabled bool) {
	colorMu.Lock()
	colorsCached = &enabled
	colorMu.Unlock()
}

// GetColorProfile returns the termenv profile for the current color mode.
func GetColorProfile() termenv.Profile {
	if !ColorsEnabled() {
		return termenv.Ascii
	}
	return termenv.ColorProfile()
}
