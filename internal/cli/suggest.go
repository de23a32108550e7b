// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// suggest.go - "did you mean" hints for mistyped commands and keys.
package cli

import (
	"strings"

	"github.com/jeranaias/arth-chat/internal/config"
)

var (
	validCommands = []string{"chat", "ask", "replay", "upload", "config", "doctor", "version", "help"}

	slashCommands = []string{"/help", "/quit", "/exit", "/image", "/followups", "/status", "/new", "/clear"}
)

// SuggestCommand returns the arth command closest to input, or "".
func SuggestCommand(input string) string {
	return closest(strings.ToLower(input), validCommands)
}

// SuggestSlashCommand returns the chat command closest to input, or "".
func SuggestSlashCommand(input string) string {
	return closest(strings.ToLower(input), slashCommands)
}

// SuggestConfigKey returns the config key closest to input, or "".
func SuggestConfigKey(input string) string {
	return closest(strings.ToLower(input), config.GetAllKeys())
}

// closest picks the candidate with the smallest edit distance to input,
// within a tolerance that grows with the input length. An exact match
// yields "" since there is nothing to suggest.
func closest(input string, candidates []string) string {
	if len(input) < 2 {
		return ""
	}
	tolerance := 1
	switch {
	case len(input) > 8:
		tolerance = 3
	case len(input) >= 4:
		tolerance = 2
	}

	best, bestDist := "", tolerance+1
	for _, c := range candidates {
		d := levenshteinDistance(input, c)
		if d == 0 {
			return ""
		}
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// levenshteinDistance is the byte-wise edit distance between a and b.
func levenshteinDistance(a, b string) int {
	if a == "" || b == "" {
		return len(a) + len(b)
	}
	row := make([]int, len(b)+1)
	for j := range row {
		row[j] = j
	}
	for i := 1; i <= len(a); i++ {
		diag := row[0]
		row[0] = i
		for j := 1; j <= len(b); j++ {
			sub := diag
			if a[i-1] != b[j-1] {
				sub++
			}
			diag = row[j]
			row[j] = min(row[j]+1, row[j-1]+1, sub)
		}
	}
	return row[len(b)]
}
