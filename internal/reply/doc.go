// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reply drives one assistant reply from a byte source to an ordered
// sequence of events.
//
// A Stream pulls chunks from a Source, runs them through the deframe
// decoder and buffer, and classifies each complete frame:
//
//   - a SUCCESS envelope becomes a Structured event with its Payload
//   - a non-SUCCESS envelope becomes an Error event of kind RemoteError
//   - any other JSON value becomes an Error event of kind MalformedPayload
//
// While no frame is complete, each chunk produces a Partial event with the
// raw buffered text. At end of input any leftover text is delivered once as
// FallbackText, followed by Terminal. A read error produces an Error of kind
// TransportFailure followed by Terminal.
//
// Cancel is silent. A cancelled stream delivers no Terminal event, so the
// caller treats a successful Cancel as the completion signal.
//
// Invalid UTF-8 and unparsable fragments are recovered inside the stream.
// They are logged and counted in metrics and never reach the handler.
package reply
