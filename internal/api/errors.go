// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/jeranaias/arth-chat/internal/util"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ClientError represents an error from the chat API client.
type ClientError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Cause      error
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Is matches sentinel errors by type.
func (e *ClientError) Is(target error) bool {
	t, ok := target.(*ClientError)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Cause == nil && t.StatusCode == 0
}

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	ErrTypeUnauthorized
	ErrTypeTimeout
	ErrTypeUnavailable
	ErrTypeConnection
	ErrTypeInvalidRequest
	ErrTypeInvalidResponse
)

// String returns the error type name.
func (t ErrorType) String() string {
	switch t {
	case ErrTypeUnauthorized:
		return "unauthorized"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeUnavailable:
		return "unavailable"
	case ErrTypeConnection:
		return "connection"
	case ErrTypeInvalidRequest:
		return "invalid_request"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// Sentinel errors for easy checking.
var (
	ErrUnauthorized = &ClientError{Type: ErrTypeUnauthorized, Message: "not authorized, check the access token"}
	ErrTimeout      = &ClientError{Type: ErrTypeTimeout, Message: "request timed out"}
	ErrUnavailable  = &ClientError{Type: ErrTypeUnavailable, Message: "chat service unavailable"}
)

// IsUnauthorized reports whether err is an authorization failure.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsTimeout reports whether err is a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsUnavailable reports whether the service could not be reached or
// answered with a server error.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// apiErrorBody is the error shape returned by the chat service.
type apiErrorBody struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Body    *struct {
		Message string `json:"message"`
	} `json:"body"`
}

// statusError builds the error for a non-2xx response. The service message
// is used when the body carries one.
func statusError(code int, body []byte) *ClientError {
	msg := "API error: " + util.IntToString(code)

	var eb apiErrorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		switch {
		case strings.TrimSpace(eb.Message) != "":
			msg = eb.Message
		case eb.Body != nil && strings.TrimSpace(eb.Body.Message) != "":
			msg = eb.Body.Message
		}
	}

	t := ErrTypeInvalidResponse
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		t = ErrTypeUnauthorized
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		t = ErrTypeTimeout
	case code >= 500:
		t = ErrTypeUnavailable
	case code >= 400:
		t = ErrTypeInvalidRequest
	}
	return &ClientError{Type: t, Message: msg, StatusCode: code}
}

// transportError maps a failed round trip.
func transportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &ClientError{Type: ErrTypeTimeout, Message: "request timed out", Cause: err}
	}
	var oe *net.OpError
	if errors.As(err, &oe) {
		return &ClientError{Type: ErrTypeUnavailable, Message: "chat service unreachable", Cause: err}
	}
	return &ClientError{Type: ErrTypeConnection, Message: "request failed", Cause: err}
}
