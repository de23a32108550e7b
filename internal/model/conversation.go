// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"sync"
	"time"

	"github.com/jeranaias/arth-chat/internal/reply"
)

// MaxMessages is the maximum number of messages kept per conversation.
// Older messages are pruned first.
const MaxMessages = 1000

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is the in-memory history of one chat session. It is safe for
// concurrent use; accessors return copies.
type Conversation struct {
	mu sync.RWMutex

	sessionID string
	createdAt time.Time
	updatedAt time.Time
	messages  []*Message
}

// NewConversation creates an empty conversation for a session.
func NewConversation(sessionID string) *Conversation {
	now := time.Now()
	return &Conversation{
		sessionID: sessionID,
		createdAt: now,
		updatedAt: now,
	}
}

// SessionID returns the session the conversation belongs to.
func (c *Conversation) SessionID() string {
	return c.sessionID
}

// UpdatedAt returns the time of the last change.
func (c *Conversation) UpdatedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.updatedAt
}

// =============================================================================
// MESSAGE MANAGEMENT
// =============================================================================

// AddUserMessage records a message sent by the user.
func (c *Conversation) AddUserMessage(content string, medias ...reply.Media) Message {
	msg := NewUserMessage(content, medias...)
	c.add(msg)
	return msg.Clone()
}

// AddSystemMessage records a local notice such as an error banner.
func (c *Conversation) AddSystemMessage(content string) Message {
	msg := NewSystemMessage(content)
	c.add(msg)
	return msg.Clone()
}

// PutReply inserts or replaces an assistant message by ID. A reply that is
// still streaming is stored as-is and can be updated with later snapshots.
func (c *Conversation) PutReply(m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := m.Clone()
	for i, existing := range c.messages {
		if existing.ID == m.ID {
			c.messages[i] = &snap
			c.updatedAt = time.Now()
			return
		}
	}
	c.messages = append(c.messages, &snap)
	c.updatedAt = time.Now()
	c.prune()
}

func (c *Conversation) add(msg *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
	c.updatedAt = time.Now()
	c.prune()
}

// prune drops the oldest messages beyond MaxMessages. Caller holds mu.
func (c *Conversation) prune() {
	if excess := len(c.messages) - MaxMessages; excess > 0 {
		c.messages = append(c.messages[:0:0], c.messages[excess:]...)
	}
}

// Messages returns copies of all messages in order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.Clone())
	}
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// LastAssistant returns the most recent assistant message.
func (c *Conversation) LastAssistant() (Message, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.messages) - 1; i >= 0; i-- {
		if c.messages[i].Role == RoleAssistant {
			return c.messages[i].Clone(), true
		}
	}
	return Message{}, false
}

// FollowUps returns the suggested follow-ups of the latest finished reply
// that had any.
func (c *Conversation) FollowUps() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.messages) - 1; i >= 0; i-- {
		m := c.messages[i]
		if m.Role == RoleAssistant && !m.IsStreaming && len(m.FollowUps) > 0 {
			return append([]string(nil), m.FollowUps...)
		}
	}
	return nil
}

// Clear removes all messages.
func (c *Conversation) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.updatedAt = time.Now()
}
