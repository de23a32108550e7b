// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - JSON output for --json mode.
//
// Every command prints one JSONResponse on stdout in JSON mode; human
// readable notices go to stderr.

package cli

import (
	"encoding/json"
	"io"
	"time"
)

// JSONResponse is the envelope of every JSON command output.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data any `json:"data"`

	// Error contains the error message if Success is false
	Error *string `json:"error"`

	// Details carries structured error fields
	Details map[string]any `json:"details,omitempty"`

	// Timestamp is the RFC 3339 time the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates an error response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	errStr := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &errStr,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response to w with indentation.
func (r *JSONResponse) Write(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}

// =============================================================================
// COMMAND DATA
// =============================================================================

// VersionData is the data of "arth version".
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// MediaData is one media attachment.
type MediaData struct {
	Type        string `json:"type"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// AskData is the data of "arth ask".
type AskData struct {
	SessionID  string      `json:"session_id"`
	StreamID   string      `json:"stream_id"`
	State      string      `json:"state"`
	Reply      string      `json:"reply"`
	Fallback   bool        `json:"fallback"`
	Medias     []MediaData `json:"medias"`
	FollowUps  []string    `json:"follow_ups"`
	Errors     []string    `json:"errors,omitempty"`
	Frames     int         `json:"frames"`
	DurationMs int64       `json:"duration_ms"`
}

// ReplayEvent is one event printed by "arth replay --json".
type ReplayEvent struct {
	Type      string      `json:"type"`
	Text      string      `json:"text,omitempty"`
	Message   string      `json:"message,omitempty"`
	Medias    []MediaData `json:"medias,omitempty"`
	FollowUps []string    `json:"follow_ups,omitempty"`
	Kind      string      `json:"kind,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// UploadData is the data of "arth upload".
type UploadData struct {
	SessionID string         `json:"session_id"`
	Uploaded  []MediaData    `json:"uploaded"`
	Failed    []UploadFailed `json:"failed"`
}

// UploadFailed is one failed upload.
type UploadFailed struct {
	Path  string `json:"path"`
	Error string `json:"error"`
}

// DoctorData is the data of "arth doctor".
type DoctorData struct {
	Checks  []DoctorCheck `json:"checks"`
	Healthy bool          `json:"healthy"`
}

// DoctorCheck is one health check result.
type DoctorCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`
}

// ConfigData is the data of "arth config show".
type ConfigData struct {
	Path   string            `json:"path"`
	Exists bool              `json:"exists"`
	Values map[string]string `json:"values"`
}
