// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reply

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jeranaias/arth-chat/internal/deframe"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// StatusSuccess is the envelope status of a structured reply.
const StatusSuccess = "SUCCESS"

// MediaTypeImage is the media type used for uploaded images.
const MediaTypeImage = "IMAGE"

// Envelope is the outer object of every reply frame.
type Envelope struct {
	Status  string   `json:"status"`
	Message string   `json:"message,omitempty"`
	Body    *Payload `json:"body,omitempty"`
}

// Payload is the body of a successful reply.
type Payload struct {
	// Status is copied from the envelope; it is not part of the body.
	Status string `json:"-"`

	Message            string     `json:"message"`
	Medias             []Media    `json:"medias,omitempty"`
	SuggestedFollowUps []FollowUp `json:"suggestedFollowUps,omitempty"`
}

// Media is an attachment on a message, sent or received.
type Media struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// FollowUp is a suggested next question.
type FollowUp struct {
	Content string `json:"content"`
}

// FollowUpTexts returns the follow-up contents in order.
func (p *Payload) FollowUpTexts() []string {
	if p == nil {
		return nil
	}
	out := make([]string, 0, len(p.SuggestedFollowUps))
	for _, f := range p.SuggestedFollowUps {
		out = append(out, f.Content)
	}
	return out
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

var (
	errNotObject   = errors.New("frame is not a JSON object")
	errNoStatus    = errors.New("frame has no string status")
	errNoBody      = errors.New("success frame has no body object")
	errBodyMistype = errors.New("body does not match reply shape")
)

// Classify turns one frame into a Structured or Error event.
//
// A SUCCESS envelope with an object body is Structured. An envelope with any
// other status is a RemoteError carrying the server message. Everything else
// is a MalformedPayload.
func Classify(f deframe.Frame) Event {
	obj, ok := f.Object()
	if !ok {
		return malformed(f, errNotObject)
	}

	status, ok := obj["status"].(string)
	if !ok {
		return malformed(f, errNoStatus)
	}

	if status != StatusSuccess {
		return Failure(KindRemoteError, &RemoteError{Status: status, Message: remoteMessage(obj)})
	}

	if _, ok := obj["body"].(map[string]any); !ok {
		return malformed(f, errNoBody)
	}

	var env Envelope
	if err := json.Unmarshal([]byte(f.Raw), &env); err != nil || env.Body == nil {
		return malformed(f, errBodyMistype)
	}
	env.Body.Status = env.Status
	return Structured(env.Body)
}

func malformed(f deframe.Frame, err error) Event {
	return Failure(KindMalformedPayload, fmt.Errorf("offset %d: %w", f.Offset, err))
}

// remoteMessage picks the server-provided message from a non-success
// envelope, checking the top level first and then the body.
func remoteMessage(obj map[string]any) string {
	if m, ok := obj["message"].(string); ok && m != "" {
		return m
	}
	if body, ok := obj["body"].(map[string]any); ok {
		if m, ok := body["message"].(string); ok {
			return m
		}
	}
	return ""
}

// RemoteError is a reply the server marked as not successful.
type RemoteError struct {
	Status  string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return "server status " + e.Status + ": " + e.Message
	}
	return "server status " + e.Status
}
