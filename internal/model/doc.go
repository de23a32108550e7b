// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// An assistant reply is represented by a Message that is built up by folding
// reply events into it. The message owns its state; nothing else mutates it.
//
// # Key Types
//
//   - Message: one message with role, content, media and follow-ups
//   - Conversation: in-memory, ordered history of one session
//   - Role: message role enumeration (user, assistant, system)
//
// # Usage
//
//	msg := model.NewAssistantMessage()
//	for ev := range events {
//	    msg.Apply(ev)
//	}
//	conv.PutReply(*msg)
//
// History is not persisted; it lives as long as the process.
package model
