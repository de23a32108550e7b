// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/arth-chat/internal/metrics"
	"github.com/jeranaias/arth-chat/internal/reply"
)

// maxConcurrentUploads bounds UploadAll.
const maxConcurrentUploads = 4

// DefaultMediaDescription labels uploaded screenshots.
const DefaultMediaDescription = "Portfolio screenshot"

// =============================================================================
// UPLOAD TYPES
// =============================================================================

// MediaDescriptor describes one file to register with the upload endpoint.
type MediaDescriptor struct {
	Type        string `json:"type"`
	Data        string `json:"data"`
	Description string `json:"description"`
}

// ImageDescriptor returns the descriptor for an image file. Only the base
// name of path is sent.
func ImageDescriptor(path string) MediaDescriptor {
	return MediaDescriptor{
		Type:        "image",
		Data:        filepath.Base(path),
		Description: DefaultMediaDescription,
	}
}

type uploadRequest struct {
	SessionID  string          `json:"sessionId"`
	CustomerID string          `json:"customerId"`
	Media      MediaDescriptor `json:"media"`
}

// UploadResponse is the upload endpoint's reply.
type UploadResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Body    struct {
		URL string `json:"url"`
	} `json:"body"`
}

// URL returns the hosted URL of the uploaded media.
func (r *UploadResponse) URL() string {
	return r.Body.URL
}

// =============================================================================
// UPLOAD
// =============================================================================

// UploadMedia registers one media file and returns the service reply. A
// response whose status is not SUCCESS is an error carrying its message.
func (c *Client) UploadMedia(ctx context.Context, sessionID, customerID string, media MediaDescriptor) (*UploadResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(uploadRequest{SessionID: sessionID, CustomerID: customerID, Media: media})
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidRequest, Message: "failed to marshal request", Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+c.config.UploadPath, bytes.NewReader(body))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeConnection, Message: "failed to create request", Cause: err}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to read response", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode, data)
	}

	var result UploadResponse
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	if result.Status != reply.StatusSuccess {
		msg := strings.TrimSpace(result.Message)
		if msg == "" {
			msg = "Failed to upload image"
		}
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: msg}
	}
	if result.URL() == "" {
		return nil, &ClientError{Type: ErrTypeInvalidResponse, Message: "upload response has no url"}
	}
	return &result, nil
}

// UploadFailure records a media file that could not be uploaded.
type UploadFailure struct {
	Media MediaDescriptor
	Err   error
}

// UploadAll uploads every descriptor concurrently. Failed uploads are
// dropped from the result and reported in failures; the media slice keeps
// the input order of the successful uploads. The error is non-nil only if
// ctx ended.
func (c *Client) UploadAll(ctx context.Context, sessionID, customerID string, medias []MediaDescriptor) ([]reply.Media, []UploadFailure, error) {
	results := make([]*reply.Media, len(medias))
	var (
		mu       sync.Mutex
		failures []UploadFailure
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentUploads)
	for i, m := range medias {
		g.Go(func() error {
			resp, err := c.UploadMedia(gctx, sessionID, customerID, m)
			metrics.RecordUpload(err == nil)
			if err != nil {
				c.log.Warn("media upload failed", "file", m.Data, "error", err)
				mu.Lock()
				failures = append(failures, UploadFailure{Media: m, Err: err})
				mu.Unlock()
				return nil
			}
			results[i] = &reply.Media{
				Type:        reply.MediaTypeImage,
				URL:         resp.URL(),
				Description: m.Description,
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, failures, err
	}

	out := make([]reply.Media, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, failures, nil
}
