// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// upload.go - "arth upload" uploads images and prints their URLs.
//
// Command: upload <image>...
// Short:   Upload images for use in a session
//
// Examples:
//   arth upload holdings.png
//   arth upload --session session_... a.png b.png --json

package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jeranaias/arth-chat/internal/api"
	"github.com/jeranaias/arth-chat/internal/session"
)

// HandleUpload uploads args.Files. It fails only if no file was uploaded.
func HandleUpload(ctx context.Context, app *App, args Args) error {
	if len(args.Files) == 0 {
		return ErrMissingArgument("image path", "arth upload holdings.png")
	}

	sessionID := args.SessionID
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}

	data := UploadData{SessionID: sessionID, Uploaded: []MediaData{}, Failed: []UploadFailed{}}

	var descriptors []api.MediaDescriptor
	var paths []string
	for _, p := range args.Files {
		if info, err := os.Stat(p); err != nil || info.IsDir() {
			reason := "not a file"
			if err != nil {
				reason = err.Error()
			}
			data.Failed = append(data.Failed, UploadFailed{Path: p, Error: reason})
			continue
		}
		descriptors = append(descriptors, api.ImageDescriptor(p))
		paths = append(paths, p)
	}

	if len(descriptors) > 0 {
		medias, failures, err := app.Client.UploadAll(ctx, sessionID, app.CustomerID(), descriptors)
		if err != nil {
			return NewCommandError("upload", "send", "upload interrupted", err)
		}
		data.Uploaded = append(data.Uploaded, mediaData(medias)...)
		for _, f := range failures {
			data.Failed = append(data.Failed, UploadFailed{Path: pathFor(paths, descriptors, f.Media), Error: f.Err.Error()})
		}
	}

	if args.JSON {
		resp := NewJSONResponse("upload", data)
		if len(data.Uploaded) == 0 {
			msg := "no image uploaded"
			resp.Success = false
			resp.Error = &msg
		}
		if err := resp.Write(app.Out); err != nil {
			return err
		}
	} else {
		for _, m := range data.Uploaded {
			fmt.Fprintf(app.Out, "%s %s\n", SuccessStyle.Render("[OK]"), m.URL)
		}
		for _, f := range data.Failed {
			fmt.Fprintf(app.ErrOut, "%s %s: %s\n", ErrorStyle.Render("[FAIL]"), f.Path, f.Error)
		}
		if !args.Quiet {
			fmt.Fprintf(app.ErrOut, "%s %s\n", DimStyle.Render("Session:"), sessionID)
		}
	}

	if len(data.Uploaded) == 0 {
		return &CommandError{Command: "upload", Action: "send", Reason: "no image uploaded"}
	}
	return nil
}

// pathFor maps a failed descriptor back to the path it came from.
func pathFor(paths []string, descriptors []api.MediaDescriptor, media api.MediaDescriptor) string {
	for i, d := range descriptors {
		if d == media {
			return paths[i]
		}
	}
	return media.Data
}
