// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// replay.go - "arth replay" decodes a captured reply body offline.
//
// Command: replay <file|-> [--chunk N]
// Short:   Feed a captured response through the reply decoder
//
// The file is read in chunks of N bytes (stream.replay_chunk_size by
// default) so that frames and multi-byte characters split across reads are
// exercised the same way as over the network.
//
// Examples:
//   arth replay body.txt
//   arth replay body.txt --chunk 1 --json
//   curl -sN ... | arth replay -

package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/jeranaias/arth-chat/internal/api"
	"github.com/jeranaias/arth-chat/internal/config"
	"github.com/jeranaias/arth-chat/internal/logging"
	"github.com/jeranaias/arth-chat/internal/model"
	"github.com/jeranaias/arth-chat/internal/reply"
	"github.com/jeranaias/arth-chat/internal/util"
)

// ReplayData is the data of "arth replay --json".
type ReplayData struct {
	File      string        `json:"file"`
	ChunkSize int           `json:"chunk_size"`
	State     string        `json:"state"`
	Events    []ReplayEvent `json:"events"`
	Reply     string        `json:"reply"`
	FollowUps []string      `json:"follow_ups"`
}

// HandleReplay replays args.Files[0], or stdin for "-".
func HandleReplay(ctx context.Context, w io.Writer, stdin io.Reader, cfg *config.Config, args Args) error {
	if len(args.Files) == 0 {
		return ErrMissingArgument("file", "arth replay captured.txt")
	}
	name := args.Files[0]

	var r io.Reader = stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return NewCommandError("replay", "open", "cannot read "+name, err)
		}
		defer f.Close()
		r = f
	}

	chunk := args.ChunkSize
	if chunk <= 0 {
		chunk = cfg.Stream.ReplayChunkSize
	}

	data, err := Replay(ctx, r, chunk, func(ev reply.Event) {
		if !args.JSON {
			writeReplayEvent(w, ev)
		}
	})
	data.File = name
	if args.JSON {
		if werr := NewJSONResponse("replay", data).Write(w); werr != nil {
			return werr
		}
	}
	if err != nil {
		return NewCommandError("replay", "read", "source failed", err)
	}
	return nil
}

// Replay runs r through a reply stream in chunks of chunkSize bytes and
// calls onEvent for every event. It returns the events and the folded
// reply.
func Replay(ctx context.Context, r io.Reader, chunkSize int, onEvent func(reply.Event)) (ReplayData, error) {
	msg := model.NewAssistantMessage()
	data := ReplayData{ChunkSize: chunkSize, Events: []ReplayEvent{}}

	stream := reply.NewStream(api.ReaderSource(r, chunkSize), func(ev reply.Event) {
		msg.Apply(ev)
		data.Events = append(data.Events, replayEvent(ev))
		if onEvent != nil {
			onEvent(ev)
		}
	}, reply.WithLogger(logging.With("command", "replay")))

	err := stream.Run(ctx)
	if stream.State() == reply.StateCancelled {
		msg.MarkCancelled()
	}

	data.State = stream.State().String()
	data.Reply = msg.Content
	data.FollowUps = nonNil(msg.FollowUps)
	return data, err
}

func replayEvent(ev reply.Event) ReplayEvent {
	out := ReplayEvent{Type: ev.Type.String()}
	switch ev.Type {
	case reply.EventPartial, reply.EventFallbackText:
		out.Text = ev.Text
	case reply.EventStructured:
		out.Message = ev.Payload.Message
		out.Medias = mediaData(ev.Payload.Medias)
		out.FollowUps = ev.Payload.FollowUpTexts()
	case reply.EventError:
		out.Kind = ev.Kind.String()
		if ev.Err != nil {
			out.Error = ev.Err.Error()
		}
	}
	return out
}

// writeReplayEvent prints one event as a tagged line.
func writeReplayEvent(w io.Writer, ev reply.Event) {
	tag := "[" + ev.Type.String() + "]"
	switch ev.Type {
	case reply.EventPartial:
		fmt.Fprintf(w, "%s %s\n", DimStyle.Render(tag), util.TruncateWidth(ev.Text, 120))
	case reply.EventStructured:
		fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render(tag), ev.Payload.Message)
		for _, m := range ev.Payload.Medias {
			fmt.Fprintf(w, "    %s %s\n", InfoStyle.Render("media:"), m.URL)
		}
		for i, f := range ev.Payload.FollowUpTexts() {
			fmt.Fprintf(w, "    %s %s\n", FollowUpStyle.Render("follow-up "+util.IntToString(i+1)+":"), f)
		}
	case reply.EventFallbackText:
		fmt.Fprintf(w, "%s %s\n", WarningStyle.Render(tag), ev.Text)
	case reply.EventError:
		fmt.Fprintf(w, "%s %s: %v\n", ErrorStyle.Render(tag), ev.Kind, ev.Err)
	case reply.EventTerminal:
		fmt.Fprintln(w, InfoStyle.Render(tag))
	}
}
