// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"strings"
	"testing"

	"github.com/jeranaias/arth-chat/internal/reply"
)

func structured(msg string, followUps ...string) reply.Event {
	p := &reply.Payload{Status: reply.StatusSuccess, Message: msg}
	for _, f := range followUps {
		p.SuggestedFollowUps = append(p.SuggestedFollowUps, reply.FollowUp{Content: f})
	}
	return reply.Structured(p)
}

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestNewMessages(t *testing.T) {
	u := NewUserMessage("Hello", reply.Media{Type: reply.MediaTypeImage, URL: "u"})
	if u.Role != RoleUser || u.Content != "Hello" || len(u.Medias) != 1 {
		t.Errorf("user message = %+v", u)
	}
	if !strings.HasPrefix(u.ID, "msg_") {
		t.Errorf("ID = %q, want msg_ prefix", u.ID)
	}

	a := NewAssistantMessage()
	if a.Role != RoleAssistant || !a.IsStreaming {
		t.Errorf("assistant message should start streaming: %+v", a)
	}
	if RoleAssistant.DisplayName() != "Arth" {
		t.Errorf("DisplayName = %q", RoleAssistant.DisplayName())
	}
}

func TestApply_PartialThenStructured(t *testing.T) {
	m := NewAssistantMessage()

	m.Apply(reply.Partial(`{"status":"SUC`))
	if m.Content != `{"status":"SUC` {
		t.Errorf("Content after partial = %q", m.Content)
	}

	m.Apply(structured("Hi", "Tell me more"))
	if m.Content != "Hi" {
		t.Errorf("Content after structured = %q, want Hi", m.Content)
	}
	if len(m.FollowUps) != 1 || m.FollowUps[0] != "Tell me more" {
		t.Errorf("FollowUps = %v", m.FollowUps)
	}

	// Partial after a structured reply must not regress the text.
	m.Apply(reply.Partial(`{"stat`))
	if m.Content != "Hi" {
		t.Errorf("Content regressed to %q", m.Content)
	}

	m.Apply(reply.Terminal())
	if m.IsStreaming {
		t.Error("IsStreaming should be false after Terminal")
	}
	if m.TotalDuration == 0 {
		t.Error("TotalDuration should be set after Terminal")
	}
}

func TestApply_LastStructuredWins(t *testing.T) {
	m := NewAssistantMessage()

	first := &reply.Payload{
		Message:            "one",
		Medias:             []reply.Media{{Type: "IMAGE", URL: "a"}, {Type: "IMAGE", URL: "b"}},
		SuggestedFollowUps: []reply.FollowUp{{Content: "x"}},
	}
	m.Apply(reply.Structured(first))
	m.Apply(reply.Structured(&reply.Payload{Message: "two"}))

	if m.Content != "two" {
		t.Errorf("Content = %q, want two", m.Content)
	}
	if len(m.Medias) != 0 || len(m.FollowUps) != 0 {
		t.Errorf("medias and follow-ups should be replaced wholesale: %v %v", m.Medias, m.FollowUps)
	}
	if m.Frames != 2 {
		t.Errorf("Frames = %d, want 2", m.Frames)
	}
}

func TestApply_Fallback(t *testing.T) {
	tests := []struct {
		name    string
		events  []reply.Event
		want    string
		isFallb bool
	}{
		{
			name:    "fallback without structured",
			events:  []reply.Event{reply.Partial("not json"), reply.FallbackText("not json at all")},
			want:    "not json at all",
			isFallb: true,
		},
		{
			name:    "fallback after structured ignored",
			events:  []reply.Event{structured("done"), reply.FallbackText(`{"tail`)},
			want:    "done",
			isFallb: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewAssistantMessage()
			for _, ev := range tt.events {
				m.Apply(ev)
			}
			if m.Content != tt.want {
				t.Errorf("Content = %q, want %q", m.Content, tt.want)
			}
			if m.IsFallback != tt.isFallb {
				t.Errorf("IsFallback = %v, want %v", m.IsFallback, tt.isFallb)
			}
		})
	}
}

func TestApply_Errors(t *testing.T) {
	m := NewAssistantMessage()

	m.Apply(reply.Failure(reply.KindMalformedPayload, errors.New("no status")))
	if kind, ok := m.LastErrorKind(); !ok || kind != reply.KindMalformedPayload {
		t.Errorf("LastErrorKind = %v, %v", kind, ok)
	}
	if m.Failed() {
		t.Error("malformed payload is not a failure")
	}

	m.Apply(reply.Failure(reply.KindTransportFailure, errors.New("reset")))
	m.Apply(reply.Terminal())

	if !m.Failed() {
		t.Error("transport failure should mark the reply failed")
	}
	if len(m.Errors) != 2 {
		t.Errorf("Errors = %v, want 2 entries", m.Errors)
	}
}

func TestAccessorsOnValue(t *testing.T) {
	m := NewAssistantMessage()
	m.Apply(structured("portfolio is up 4%"))
	m.Apply(reply.Failure(reply.KindTransportFailure, errors.New("reset")))
	m.Apply(reply.Terminal())

	// Clone returns a non-addressable value, as Handle.Reply does.
	if !m.Clone().Failed() {
		t.Error("Failed() on a copy should match the original")
	}
	if !m.Clone().HasStructured() {
		t.Error("HasStructured() on a copy should be true")
	}
	if kind, ok := m.Clone().LastErrorKind(); !ok || kind != reply.KindTransportFailure {
		t.Errorf("LastErrorKind() on a copy = %v, %v", kind, ok)
	}
	if m.Clone().IsEmpty() {
		t.Error("IsEmpty() on a copy should be false")
	}
	if got := m.Clone().Preview(9); got != "portfo..." {
		t.Errorf("Preview() on a copy = %q", got)
	}
	if m.Clone().FormatStats() == "" {
		t.Error("FormatStats() on a copy should not be empty")
	}
}

func TestApply_IgnoredAfterFinish(t *testing.T) {
	m := NewAssistantMessage()
	m.Apply(structured("final"))
	m.Apply(reply.Terminal())
	m.Apply(structured("late"))

	if m.Content != "final" {
		t.Errorf("Content = %q, late events must be ignored", m.Content)
	}
}

func TestMarkCancelled(t *testing.T) {
	m := NewAssistantMessage()
	m.Apply(reply.Partial("typing"))
	m.MarkCancelled()

	if m.IsStreaming || !m.IsCancelled {
		t.Errorf("IsStreaming=%v IsCancelled=%v", m.IsStreaming, m.IsCancelled)
	}
	if m.Content != "typing" {
		t.Errorf("Content = %q, partial text should be kept", m.Content)
	}

	done := NewAssistantMessage()
	done.Apply(reply.Terminal())
	done.MarkCancelled()
	if done.IsCancelled {
		t.Error("finished message should not become cancelled")
	}
}

func TestClone_Independent(t *testing.T) {
	m := NewAssistantMessage()
	m.Apply(structured("a", "f1"))

	c := m.Clone()
	c.FollowUps[0] = "changed"
	if m.FollowUps[0] != "f1" {
		t.Error("Clone shares follow-up slice")
	}
}

func TestFormatStats(t *testing.T) {
	m := NewAssistantMessage()
	if m.FormatStats() != "" {
		t.Error("streaming message should have no stats")
	}
	m.Apply(structured("x"))
	m.Apply(reply.Terminal())

	stats := m.FormatStats()
	if !strings.Contains(stats, "TTFT") || !strings.Contains(stats, "1 frames") {
		t.Errorf("FormatStats = %q", stats)
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_PutReply(t *testing.T) {
	c := NewConversation("session_1")
	c.AddUserMessage("hi")

	m := NewAssistantMessage()
	c.PutReply(*m)
	if c.Len() != 2 {
		t.Fatalf("Len = %d, want 2", c.Len())
	}

	m.Apply(structured("hello", "next?"))
	m.Apply(reply.Terminal())
	c.PutReply(*m)

	if c.Len() != 2 {
		t.Errorf("PutReply should replace by ID, Len = %d", c.Len())
	}
	last, ok := c.LastAssistant()
	if !ok || last.Content != "hello" {
		t.Errorf("LastAssistant = %+v, %v", last, ok)
	}
	if f := c.FollowUps(); len(f) != 1 || f[0] != "next?" {
		t.Errorf("FollowUps = %v", f)
	}
}

func TestConversation_FollowUpsSkipStreaming(t *testing.T) {
	c := NewConversation("s")

	done := NewAssistantMessage()
	done.Apply(structured("a", "old"))
	done.Apply(reply.Terminal())
	c.PutReply(*done)

	streaming := NewAssistantMessage()
	streaming.Apply(structured("b", "new"))
	c.PutReply(*streaming)

	if f := c.FollowUps(); len(f) != 1 || f[0] != "old" {
		t.Errorf("FollowUps = %v, want [old]", f)
	}
}

func TestConversation_Prune(t *testing.T) {
	c := NewConversation("s")
	for i := 0; i < MaxMessages+10; i++ {
		c.AddUserMessage("m")
	}
	if c.Len() != MaxMessages {
		t.Errorf("Len = %d, want %d", c.Len(), MaxMessages)
	}

	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear = %d", c.Len())
	}
	if _, ok := c.LastAssistant(); ok {
		t.Error("LastAssistant on empty conversation should be false")
	}
}
