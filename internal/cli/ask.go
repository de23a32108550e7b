// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One-shot "arth ask" command.
//
// Command: ask [flags] <message>
// Short:   Send one message and print the reply
// Aliases: a
//
// Examples:
//   arth ask "How did my portfolio do this week?"
//   arth ask --image holdings.png "What stands out?"
//   echo "Summarize my risk" | arth ask
//   arth ask --json "Any rebalancing ideas?"
//
// Flags:
//   -i, --image PATH    Attach an image (repeatable)

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jeranaias/arth-chat/internal/api"
	"github.com/jeranaias/arth-chat/internal/model"
	"github.com/jeranaias/arth-chat/internal/reply"
	"github.com/jeranaias/arth-chat/internal/session"
)

// MaxStdinMessage caps a message read from stdin.
const MaxStdinMessage = 64 * 1024

// HandleAsk sends args.Query, waits for the reply and prints it.
func HandleAsk(ctx context.Context, app *App, args Args) error {
	query := strings.TrimSpace(args.Query)
	if query == "" && !IsTTY() {
		data, err := io.ReadAll(io.LimitReader(app.Stdin, MaxStdinMessage))
		if err != nil {
			return NewCommandError("ask", "read", "cannot read stdin", err)
		}
		query = strings.TrimSpace(string(data))
	}
	if query == "" {
		return ErrMissingArgument("message", `arth ask "How is my portfolio doing?"`)
	}

	sessionID := args.SessionID
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}

	medias, err := uploadImages(ctx, app, sessionID, args.Images, args.Quiet)
	if err != nil {
		return err
	}

	ctrl := app.NewController()
	defer ctrl.Close()

	replyCtx, cancel := app.replyContext(ctx)
	defer cancel()

	msg, h, err := sendAndWait(replyCtx, app, ctrl, session.Request{
		SessionID:  sessionID,
		CustomerID: app.CustomerID(),
		Message:    query,
		Medias:     medias,
	})
	if err != nil {
		return NewCommandError("ask", "send", "message not sent", err)
	}

	if args.JSON {
		if err := NewJSONResponse("ask", askData(sessionID, h, msg)).Write(app.Out); err != nil {
			return err
		}
	} else {
		writeReply(app.Out, app.Renderer, msg)
		if app.Config.UI.ShowStats && !args.Quiet {
			fmt.Fprintln(app.ErrOut, DimStyle.Render(msg.FormatStats()))
		}
	}

	return replyError("ask", ctx, replyCtx, h, msg)
}

// sendAndWait sends req and blocks until its reply has stopped, showing
// partial text on the status line meanwhile.
func sendAndWait(ctx context.Context, app *App, ctrl *session.Controller, req session.Request) (model.Message, *session.Handle, error) {
	line := newStatusLine(app.ErrOut, app.showPartials)
	h, err := ctrl.Send(ctx, req, session.Callbacks{
		OnPartial: line.Show,
		OnStructured: func(p *reply.Payload) {
			line.Show(p.Message)
		},
		OnError: func(kind reply.ErrorKind, err error) {
			app.Log.Debug("reply error event", "kind", kind, "error", err)
		},
	})
	if err != nil {
		return model.Message{}, nil, err
	}
	<-h.Done()
	line.Clear()
	return h.Reply(), h, nil
}

// replyError returns why a reply did not complete: the caller's
// cancellation, the reply timeout or a transport failure.
func replyError(command string, parent, replyCtx context.Context, h *session.Handle, msg model.Message) error {
	switch {
	case parent.Err() != nil:
		return parent.Err()
	case h.State() == reply.StateCancelled && replyCtx.Err() != nil:
		return replyCtx.Err()
	case msg.Failed():
		return NewCommandError(command, "receive", "reply interrupted", h.Err())
	}
	return nil
}

// uploadImages uploads the images at paths. Failed uploads are reported and
// left out, as the service accepts a message without them.
func uploadImages(ctx context.Context, app *App, sessionID string, paths []string, quiet bool) ([]reply.Media, error) {
	if len(paths) == 0 {
		return nil, nil
	}

	descriptors := make([]api.MediaDescriptor, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return nil, NewCommandError("upload", "read", "cannot read "+p, err)
		}
		descriptors = append(descriptors, api.ImageDescriptor(p))
	}

	medias, failures, err := app.Client.UploadAll(ctx, sessionID, app.CustomerID(), descriptors)
	if err != nil {
		return nil, err
	}
	for _, f := range failures {
		app.warnf("image %s not attached: %v", f.Media.Data, f.Err)
	}
	if !quiet && len(medias) > 0 {
		fmt.Fprintf(app.ErrOut, "%s %d image(s) attached\n", InfoStyle.Render("[Upload]"), len(medias))
	}
	return medias, nil
}

func askData(sessionID string, h *session.Handle, msg model.Message) AskData {
	return AskData{
		SessionID:  sessionID,
		StreamID:   h.StreamID,
		State:      h.State().String(),
		Reply:      msg.Content,
		Fallback:   msg.IsFallback,
		Medias:     mediaData(msg.Medias),
		FollowUps:  nonNil(msg.FollowUps),
		Errors:     msg.Errors,
		Frames:     msg.Frames,
		DurationMs: msg.TotalDuration.Milliseconds(),
	}
}

func mediaData(medias []reply.Media) []MediaData {
	out := make([]MediaData, 0, len(medias))
	for _, m := range medias {
		out = append(out, MediaData{Type: m.Type, URL: m.URL, Description: m.Description})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
