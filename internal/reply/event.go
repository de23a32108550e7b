// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reply

import (
	"errors"
	"fmt"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// EventType identifies the kind of a reply update.
type EventType int

const (
	// EventPartial carries the raw buffered text while no frame is complete.
	EventPartial EventType = iota

	// EventStructured carries a parsed success envelope.
	EventStructured

	// EventFallbackText carries text left unparsed at end of stream.
	EventFallbackText

	// EventError reports a problem with a frame or the transport.
	EventError

	// EventTerminal is the last event of a stream that was not cancelled.
	EventTerminal
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventPartial:
		return "partial"
	case EventStructured:
		return "structured"
	case EventFallbackText:
		return "fallback"
	case EventError:
		return "error"
	case EventTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is one reply update, delivered in arrival order.
type Event struct {
	Type EventType

	// Text is set for Partial and FallbackText.
	Text string

	// Payload is set for Structured.
	Payload *Payload

	// Kind and Err are set for Error.
	Kind ErrorKind
	Err  error
}

// Partial creates a partial-text event.
func Partial(text string) Event {
	return Event{Type: EventPartial, Text: text}
}

// Structured creates a structured-reply event.
func Structured(p *Payload) Event {
	return Event{Type: EventStructured, Payload: p}
}

// FallbackText creates a fallback-text event.
func FallbackText(text string) Event {
	return Event{Type: EventFallbackText, Text: text}
}

// Failure creates an error event. The error is wrapped in a *StreamError
// unless it already is one.
func Failure(kind ErrorKind, err error) Event {
	var se *StreamError
	if err == nil || !errors.As(err, &se) {
		se = &StreamError{Kind: kind, Err: err}
	}
	return Event{Type: EventError, Kind: kind, Err: se}
}

// Terminal creates the end-of-stream event.
func Terminal() Event {
	return Event{Type: EventTerminal}
}

// String returns a short description for logs.
func (e Event) String() string {
	switch e.Type {
	case EventError:
		return "error(" + e.Kind.String() + ")"
	case EventPartial, EventFallbackText:
		return fmt.Sprintf("%s(%d bytes)", e.Type, len(e.Text))
	default:
		return e.Type.String()
	}
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorKind categorizes reply errors.
//
// Besides the four decode and transport kinds there is KindRemoteError,
// for an envelope the service sent with a status other than SUCCESS. A
// switch over kinds should handle it or have a default case. Only
// KindTransportFailure is fatal.
type ErrorKind int

const (
	// KindDecodeAnomaly is an invalid byte sequence, replaced and counted.
	KindDecodeAnomaly ErrorKind = iota

	// KindMalformedPayload is well-formed JSON without the expected envelope.
	KindMalformedPayload

	// KindUnparsableFragment is a balanced span that failed to parse.
	KindUnparsableFragment

	// KindTransportFailure is a read error from the byte source. Fatal.
	KindTransportFailure

	// KindRemoteError is an envelope whose status is not SUCCESS.
	KindRemoteError
)

// String returns the kind name.
func (k ErrorKind) String() string {
	switch k {
	case KindDecodeAnomaly:
		return "decode_anomaly"
	case KindMalformedPayload:
		return "malformed_payload"
	case KindUnparsableFragment:
		return "unparsable_fragment"
	case KindTransportFailure:
		return "transport_failure"
	case KindRemoteError:
		return "remote_error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Fatal reports whether the kind ends the stream.
func (k ErrorKind) Fatal() bool {
	return k == KindTransportFailure
}

// StreamError is the error carried by an EventError.
type StreamError struct {
	Kind ErrorKind
	Err  error
}

func (e *StreamError) Error() string {
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *StreamError) Unwrap() error {
	return e.Err
}

// Is matches another *StreamError with the same kind, so the sentinels below
// work with errors.Is.
func (e *StreamError) Is(target error) bool {
	t, ok := target.(*StreamError)
	return ok && t.Err == nil && t.Kind == e.Kind
}

// Sentinel errors for errors.Is checks.
var (
	ErrMalformedPayload = &StreamError{Kind: KindMalformedPayload}
	ErrTransportFailure = &StreamError{Kind: KindTransportFailure}
	ErrRemoteError      = &StreamError{Kind: KindRemoteError}
)

// KindOf returns the kind of a reply error and whether err is one.
func KindOf(err error) (ErrorKind, bool) {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}
