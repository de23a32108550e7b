// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session runs assistant replies with at most one active reply per
// chat session.
//
// # Key Types
//
//   - Controller: starts replies, supersedes and cancels them per session
//   - Handle: one running reply with its accumulated message
//   - Callbacks: consumer hooks invoked in event order
//   - Opener: opens the byte source for a request (see package api)
//
// # Usage
//
//	ctrl := session.NewController(client.Opener(api.TransportHTTP))
//	defer ctrl.Close()
//
//	h, err := ctrl.Send(ctx, session.Request{
//	    SessionID: sid,
//	    Message:   "hello",
//	}, session.Callbacks{
//	    OnStructured: func(p *reply.Payload) { render(p) },
//	})
//	<-h.Done()
//
// Sending again on the same session cancels the previous reply first.
// Cancellation is silent: the cancelled reply gets no OnTerminal, and its
// Handle reports StateCancelled once Done is closed.
package session
