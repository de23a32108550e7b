// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Shared state of the commands that talk to the chat service.

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/muesli/termenv"

	"github.com/jeranaias/arth-chat/internal/api"
	"github.com/jeranaias/arth-chat/internal/config"
	"github.com/jeranaias/arth-chat/internal/logging"
	"github.com/jeranaias/arth-chat/internal/session"
)

// App carries the configuration, client and I/O shared by commands.
type App struct {
	Config    *config.Config
	Client    *api.Client
	Transport api.Transport
	Renderer  *Renderer
	Log       *slog.Logger

	Stdin  io.Reader
	Out    io.Writer
	ErrOut io.Writer

	// showPartials enables the in-progress status line
	showPartials bool
}

// NewApp builds an App from cfg. args.Transport overrides api.transport.
func NewApp(cfg *config.Config, args Args) (*App, error) {
	transportName := cfg.API.Transport
	if args.Transport != "" {
		transportName = args.Transport
	}
	transport, err := api.ParseTransport(transportName)
	if err != nil {
		return nil, ErrInvalidFormat("transport", transportName, "--transport sse")
	}

	log := logging.Logger()
	client := api.NewClient(clientConfig(cfg, log))

	return &App{
		Config:       cfg,
		Client:       client,
		Transport:    transport,
		Renderer:     NewRenderer(cfg.UI.Markdown && !args.JSON),
		Log:          log,
		Stdin:        os.Stdin,
		Out:          os.Stdout,
		ErrOut:       os.Stderr,
		showPartials: cfg.Stream.ShowPartials && !args.JSON && !args.Quiet && IsStdoutTTY(),
	}, nil
}

// clientConfig maps the api section of cfg onto the client settings.
func clientConfig(cfg *config.Config, log *slog.Logger) *api.ClientConfig {
	return &api.ClientConfig{
		BaseURL:           cfg.API.BaseURL,
		Token:             cfg.API.Token,
		StreamPath:        cfg.API.StreamPath,
		WebSocketURL:      cfg.API.WebSocketURL,
		Timeout:           time.Duration(cfg.API.TimeoutSecs) * time.Second,
		ConnectTimeout:    time.Duration(cfg.API.ConnectTimeoutSecs) * time.Second,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Logger:            log,
	}
}

// NewController returns a session controller that opens replies over the
// configured transport.
func (a *App) NewController() *session.Controller {
	return session.NewController(a.Client.Opener(a.Transport), session.WithLogger(a.Log))
}

// CustomerID returns the configured customer identifier.
func (a *App) CustomerID() string {
	return a.Config.API.CustomerID
}

// replyContext bounds one reply by stream.reply_timeout_secs.
func (a *App) replyContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if secs := a.Config.Stream.ReplyTimeoutSecs; secs > 0 {
		return context.WithTimeout(ctx, time.Duration(secs)*time.Second)
	}
	return context.WithCancel(ctx)
}

// warnf writes a warning to ErrOut.
func (a *App) warnf(format string, args ...any) {
	fmt.Fprintf(a.ErrOut, "%s %s\n", WarningStyle.Render("[Warning]"), fmt.Sprintf(format, args...))
}

// =============================================================================
// STATUS LINE
// =============================================================================

// statusLine shows in-progress reply text on a single rewritten line.
type statusLine struct {
	out     *termenv.Output
	enabled bool
	shown   bool
}

func newStatusLine(w io.Writer, enabled bool) *statusLine {
	return &statusLine{out: termenv.NewOutput(w), enabled: enabled}
}

// Show replaces the line with text.
func (s *statusLine) Show(text string) {
	if !s.enabled {
		return
	}
	s.out.ClearLine()
	fmt.Fprint(s.out, "\r"+partialLine(text))
	s.shown = true
}

// Clear removes the line.
func (s *statusLine) Clear() {
	if !s.shown {
		return
	}
	s.out.ClearLine()
	fmt.Fprint(s.out, "\r")
	s.shown = false
}
