// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/arth-chat/internal/reply"
	"github.com/jeranaias/arth-chat/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Arth"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single message in a conversation. An assistant message is
// built up by folding reply events into it with Apply.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content   string        `json:"content"`
	Medias    []reply.Media `json:"medias,omitempty"`
	FollowUps []string      `json:"follow_ups,omitempty"`

	// Streaming state
	IsStreaming bool `json:"-"`
	IsCancelled bool `json:"cancelled,omitempty"`
	IsFallback  bool `json:"fallback,omitempty"` // content is unparsed reply text

	// Errors seen while streaming, in order
	Errors []string `json:"errors,omitempty"`

	// Timing (assistant messages)
	TTFT          time.Duration `json:"ttft_ns,omitempty"`
	TotalDuration time.Duration `json:"total_duration_ns,omitempty"`
	Frames        int           `json:"frames,omitempty"`

	structured bool
	lastKind   reply.ErrorKind
	hasError   bool
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message with optional attachments.
func NewUserMessage(content string, medias ...reply.Media) *Message {
	msg := NewMessage(RoleUser, content)
	if len(medias) > 0 {
		msg.Medias = append([]reply.Media(nil), medias...)
	}
	return msg
}

// NewAssistantMessage creates an empty assistant message in streaming state.
func NewAssistantMessage() *Message {
	return &Message{
		ID:          generateID(),
		Role:        RoleAssistant,
		Timestamp:   time.Now(),
		IsStreaming: true,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// =============================================================================
// EVENT FOLDING
// =============================================================================

// Apply folds one reply event into the message.
//
// Partial text overwrites the content until a structured reply arrives.
// Each structured reply replaces content, medias and follow-ups wholesale.
// Fallback text is used only if no structured reply was seen. Terminal ends
// streaming. Events after the message stopped streaming are ignored.
func (m *Message) Apply(ev reply.Event) {
	if !m.IsStreaming {
		return
	}

	if m.TTFT == 0 && ev.Type != reply.EventTerminal {
		m.TTFT = time.Since(m.Timestamp)
	}

	switch ev.Type {
	case reply.EventPartial:
		if !m.structured {
			m.Content = ev.Text
		}

	case reply.EventStructured:
		m.Frames++
		m.structured = true
		m.IsFallback = false
		if p := ev.Payload; p != nil {
			m.Content = p.Message
			m.Medias = append([]reply.Media(nil), p.Medias...)
			m.FollowUps = p.FollowUpTexts()
		}

	case reply.EventFallbackText:
		if !m.structured {
			m.Content = ev.Text
			m.IsFallback = true
		}

	case reply.EventError:
		m.Frames++
		m.hasError = true
		m.lastKind = ev.Kind
		if ev.Err != nil {
			m.Errors = append(m.Errors, ev.Err.Error())
		} else {
			m.Errors = append(m.Errors, ev.Kind.String())
		}

	case reply.EventTerminal:
		m.finish()
	}
}

// MarkCancelled ends streaming for a reply that was cancelled. Cancelled
// streams deliver no Terminal event, so this is their completion signal.
func (m *Message) MarkCancelled() {
	if !m.IsStreaming {
		return
	}
	m.IsCancelled = true
	m.finish()
}

func (m *Message) finish() {
	m.IsStreaming = false
	m.TotalDuration = time.Since(m.Timestamp)
}

// LastErrorKind returns the kind of the most recent error event.
func (m Message) LastErrorKind() (reply.ErrorKind, bool) {
	return m.lastKind, m.hasError
}

// HasStructured reports whether a structured reply was folded in.
func (m Message) HasStructured() bool {
	return m.structured
}

// Failed reports whether the reply ended with a transport failure.
func (m Message) Failed() bool {
	return m.hasError && m.lastKind.Fatal()
}

// Clone returns a copy that shares no slices with m.
func (m *Message) Clone() Message {
	c := *m
	c.Medias = append([]reply.Media(nil), m.Medias...)
	c.FollowUps = append([]string(nil), m.FollowUps...)
	c.Errors = append([]string(nil), m.Errors...)
	return c
}

// =============================================================================
// DISPLAY HELPERS
// =============================================================================

// Preview returns a truncated preview of the message content.
func (m Message) Preview(maxLen int) string {
	return util.TruncateRunes(m.Content, maxLen)
}

// IsEmpty returns true if the message has no content and no media.
func (m Message) IsEmpty() bool {
	return len(m.Content) == 0 && len(m.Medias) == 0
}

// FormatStats returns timing information for a finished assistant message,
// e.g. "2.5s | TTFT 234ms | 1 frames".
func (m Message) FormatStats() string {
	if m.Role != RoleAssistant || m.TotalDuration == 0 {
		return ""
	}
	return formatDuration(m.TotalDuration) + " | TTFT " +
		util.Int64ToString(m.TTFT.Milliseconds()) + "ms | " +
		util.IntToString(m.Frames) + " frames"
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return util.Int64ToString(d.Milliseconds()) + "ms"
	}
	return util.FloatToStringPrec(d.Seconds(), 1) + "s"
}
