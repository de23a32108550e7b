// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Reply rendering for the terminal.

package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/arth-chat/internal/model"
	"github.com/jeranaias/arth-chat/internal/util"
)

// =============================================================================
// MARKDOWN
// =============================================================================

// Renderer renders final replies, as markdown when enabled.
type Renderer struct {
	md *glamour.TermRenderer
}

// NewRenderer creates a renderer. Markdown is used only when markdown is
// true and stdout is a terminal, so piped output stays plain.
func NewRenderer(markdown bool) *Renderer {
	r := &Renderer{}
	if !markdown || !IsStdoutTTY() {
		return r
	}
	width := GetTerminalWidth() - 4
	if width > 100 {
		width = 100
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		r.md = md
	}
	return r
}

// Markdown renders content, returning it unchanged when markdown is off or
// rendering fails.
func (r *Renderer) Markdown(content string) string {
	if r == nil || r.md == nil {
		return content
	}
	rendered, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// REPLY OUTPUT
// =============================================================================

// writeReply writes a finished reply: text, attachments, follow-ups and any
// errors seen while streaming.
func writeReply(w io.Writer, r *Renderer, msg model.Message) {
	switch {
	case msg.Content != "":
		text := r.Markdown(msg.Content)
		fmt.Fprint(w, text)
		if !strings.HasSuffix(text, "\n") {
			fmt.Fprintln(w)
		}
	case msg.IsCancelled:
	case len(msg.Medias) == 0:
		fmt.Fprintln(w, DimStyle.Render("(empty reply)"))
	}

	if msg.IsFallback {
		fmt.Fprintln(w, WarningStyle.Render("[Unparsed reply text]"))
	}

	for _, m := range msg.Medias {
		line := InfoStyle.Render("["+strings.ToLower(m.Type)+"]") + " " + m.URL
		if m.Description != "" {
			line += " " + DimStyle.Render("- "+m.Description)
		}
		fmt.Fprintln(w, line)
	}

	writeFollowUps(w, msg.FollowUps)

	for _, e := range msg.Errors {
		fmt.Fprintln(w, WarningStyle.Render("[Warning]")+" "+e)
	}
	if msg.IsCancelled {
		fmt.Fprintln(w, WarningStyle.Render("[Cancelled]"))
	}
}

// writeFollowUps writes numbered follow-up suggestions.
func writeFollowUps(w io.Writer, followUps []string) {
	if len(followUps) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, SectionStyle.Render("Suggested follow-ups:"))
	for i, f := range followUps {
		fmt.Fprintf(w, "  %s %s\n", FollowUpStyle.Render("/"+util.IntToString(i+1)), f)
	}
}

// partialLine returns in-progress text for a single status line, cut to the
// terminal width.
func partialLine(text string) string {
	line := strings.ReplaceAll(text, "\n", " ")
	return PartialStyle.Render(util.TruncateWidth(line, GetTerminalWidth()-2))
}
