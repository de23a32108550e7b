// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive "arth chat" REPL.
//
// Command: chat
// Short:   Start an interactive chat session (default command)
//
// Examples:
//   arth                          Start chatting
//   arth chat --transport sse     Receive replies as Server-Sent Events
//   arth chat --session ID        Continue a session
//
// Interactive Commands (during chat):
//   /image <path>       Attach an image to the next message
//   /image              List pending images; "/image clear" drops them
//   /followups, /f      Show suggested follow-ups
//   /1, /2, ...         Send a suggested follow-up
//   /status, /s         Show session status
//   /new                Start a new session
//   /clear, /c          Clear the conversation history
//   /help, /h           Show available commands
//   /quit, /q           Exit chat
//   Ctrl+C              Cancel the reply in progress (exits at the prompt)
//   Ctrl+D              Exit chat

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/arth-chat/internal/logging"
	"github.com/jeranaias/arth-chat/internal/session"
	"github.com/jeranaias/arth-chat/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides input history and line editing for interactive chat.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor that keeps history in historyFile.
// An empty historyFile disables persistence.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{
		line:        line,
		historyFile: historyFile,
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from the history file.
func (c *ChatCLI) LoadHistory() {
	if c.historyFile == "" {
		return
	}
	if f, err := os.Open(c.historyFile); err == nil {
		_, _ = c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads one line; non-empty lines are added to history.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory writes input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if c.historyFile == "" {
		return
	}
	err := util.AtomicWrite(c.historyFile, 0600, 0700, func(w io.Writer) error {
		_, err := c.line.WriteHistory(w)
		return err
	})
	if err != nil {
		logging.Debug("cannot save input history", "path", c.historyFile, "error", err)
	}
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// lineReader reads one line of user input.
type lineReader interface {
	ReadInput(prompt string) (string, error)
}

// =============================================================================
// SESSION STATE
// =============================================================================

// ChatSession holds the state of an interactive chat.
type ChatSession struct {
	App   *App
	Ctrl  *session.Controller
	Quiet bool

	StartTime time.Time
	Sent      int

	// Images attached to the next message
	Pending []string

	mu        sync.Mutex
	sessionID string
}

// NewChatSession creates a chat on app. An empty sessionID starts a new
// session.
func NewChatSession(app *App, sessionID string, quiet bool) *ChatSession {
	if sessionID == "" {
		sessionID = session.NewSessionID()
	}
	return &ChatSession{
		App:       app,
		Ctrl:      app.NewController(),
		Quiet:     quiet,
		StartTime: time.Now(),
		sessionID: sessionID,
	}
}

// SessionID returns the current session.
func (cs *ChatSession) SessionID() string {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.sessionID
}

func (cs *ChatSession) setSessionID(id string) {
	cs.mu.Lock()
	cs.sessionID = id
	cs.mu.Unlock()
}

// CancelReply cancels the reply in progress, if any.
func (cs *ChatSession) CancelReply() bool {
	return cs.Ctrl.CancelActive(cs.SessionID())
}

// FollowUps returns the follow-ups of the latest finished reply.
func (cs *ChatSession) FollowUps() []string {
	if h := cs.Ctrl.History(cs.SessionID()); h != nil {
		return h.FollowUps()
	}
	return nil
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChat runs the interactive chat until the user quits.
func HandleChat(ctx context.Context, app *App, args Args) error {
	cs := NewChatSession(app, args.SessionID, args.Quiet)
	defer cs.Ctrl.Close()

	historyFile, err := app.Config.HistoryPath()
	if err != nil {
		historyFile = ""
	}
	input := NewChatCLI(historyFile)
	defer input.Close()

	if !cs.Quiet {
		printWelcome(app.Out, cs)
	}

	// Ctrl+C while a reply streams cancels it; at the prompt liner
	// reports it as ErrPromptAborted instead.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	defer signal.Stop(sigChan)
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-sigChan:
				cs.CancelReply()
			case <-done:
				return
			}
		}
	}()

	return cs.Run(ctx, input)
}

// Run reads and handles input until EOF, /quit or ctx ends.
func (cs *ChatSession) Run(ctx context.Context, in lineReader) error {
	out := cs.App.Out
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := in.ReadInput(PromptStyle.Render("arth> "))
		if err != nil {
			if !errors.Is(err, liner.ErrPromptAborted) && !errors.Is(err, io.EOF) {
				cs.App.Log.Debug("input ended", "error", err)
			}
			fmt.Fprintln(out)
			cs.printExitSummary()
			return nil
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			keepGoing, err := cs.handleSlashCommand(ctx, line)
			if err != nil {
				DisplayError(cs.App.ErrOut, "chat", err, false)
			}
			if !keepGoing {
				cs.printExitSummary()
				return nil
			}
			continue
		}

		if strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit") {
			cs.printExitSummary()
			return nil
		}

		if err := cs.processMessage(ctx, line); err != nil {
			DisplayError(cs.App.ErrOut, "chat", err, false)
		}
	}
}

// =============================================================================
// MESSAGE PROCESSING
// =============================================================================

// processMessage sends text with the pending images and prints the reply.
func (cs *ChatSession) processMessage(ctx context.Context, text string) error {
	app := cs.App
	sid := cs.SessionID()

	medias, err := uploadImages(ctx, app, sid, cs.Pending, cs.Quiet)
	if err != nil {
		return err
	}
	cs.Pending = nil

	replyCtx, cancel := app.replyContext(ctx)
	defer cancel()

	msg, h, err := sendAndWait(replyCtx, app, cs.Ctrl, session.Request{
		SessionID:  sid,
		CustomerID: app.CustomerID(),
		Message:    text,
		Medias:     medias,
	})
	if err != nil {
		return NewCommandError("chat", "send", "message not sent", err)
	}
	cs.Sent++

	fmt.Fprintln(app.Out)
	fmt.Fprintln(app.Out, AssistantStyle.Render("Arth:"))
	writeReply(app.Out, app.Renderer, msg)
	if app.Config.UI.ShowStats && !cs.Quiet {
		if stats := msg.FormatStats(); stats != "" {
			fmt.Fprintln(app.ErrOut, DimStyle.Render("["+stats+"]"))
		}
	}
	fmt.Fprintln(app.Out)

	if ctx.Err() != nil {
		return nil
	}
	return replyError("chat", ctx, replyCtx, h, msg)
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand runs a slash command. It returns false to exit.
func (cs *ChatSession) handleSlashCommand(ctx context.Context, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	command := strings.ToLower(parts[0])
	args := parts[1:]
	out := cs.App.Out

	if n, err := strconv.Atoi(strings.TrimPrefix(command, "/")); err == nil {
		followUps := cs.FollowUps()
		if n < 1 || n > len(followUps) {
			return true, fmt.Errorf("no follow-up %d (type /followups to list them)", n)
		}
		fmt.Fprintln(out, DimStyle.Render("> "+followUps[n-1]))
		return true, cs.processMessage(ctx, followUps[n-1])
	}

	switch command {
	case "/help", "/h", "/?", "/":
		printChatHelp(out)
	case "/quit", "/q", "/exit":
		return false, nil
	case "/image", "/img", "/i":
		return true, cs.handleImageCommand(args)
	case "/followups", "/f":
		followUps := cs.FollowUps()
		if len(followUps) == 0 {
			fmt.Fprintln(out, DimStyle.Render("No suggested follow-ups yet"))
		}
		writeFollowUps(out, followUps)
	case "/status", "/s":
		cs.printStatus()
	case "/new":
		cs.CancelReply()
		cs.setSessionID(session.NewSessionID())
		cs.Pending = nil
		fmt.Fprintf(out, "%s New session %s\n", SuccessStyle.Render("[OK]"), cs.SessionID())
	case "/clear", "/c":
		if h := cs.Ctrl.History(cs.SessionID()); h != nil {
			h.Clear()
		}
		fmt.Fprintln(out, SuccessStyle.Render("[Conversation cleared]"))
	default:
		if s := SuggestSlashCommand(command); s != "" {
			return true, fmt.Errorf("unknown command: %s (did you mean %s?)", command, s)
		}
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return true, nil
}

// handleImageCommand attaches, lists or clears pending images.
func (cs *ChatSession) handleImageCommand(args []string) error {
	out := cs.App.Out
	if len(args) == 0 {
		if len(cs.Pending) == 0 {
			fmt.Fprintln(out, DimStyle.Render("No images attached. Usage: /image <path>"))
			return nil
		}
		for _, p := range cs.Pending {
			fmt.Fprintf(out, "  %s %s\n", InfoStyle.Render("[image]"), p)
		}
		return nil
	}
	if len(args) == 1 && strings.EqualFold(args[0], "clear") {
		cs.Pending = nil
		fmt.Fprintln(out, SuccessStyle.Render("[Images cleared]"))
		return nil
	}

	path := strings.Join(args, " ")
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot attach %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("cannot attach %s: is a directory", path)
	}
	cs.Pending = append(cs.Pending, path)
	fmt.Fprintf(out, "%s %s (%s) will be sent with your next message\n",
		SuccessStyle.Render("[Attached]"), path, util.FormatBytes(info.Size()))
	return nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func printWelcome(w io.Writer, cs *ChatSession) {
	cfg := cs.App.Config
	fmt.Fprintln(w, TitleStyle.Render("Arth - portfolio assistant"))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Service:"), ValueStyle.Render(cfg.API.BaseURL))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Transport:"), ValueStyle.Render(string(cs.App.Transport)))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Session:"), ValueStyle.Render(cs.SessionID()))
	if cfg.API.Token == "" {
		fmt.Fprintf(w, "%s no access token set (arth config set api.token ... or ARTH_TOKEN)\n",
			WarningStyle.Render("[Warning]"))
	}
	fmt.Fprintln(w, DimStyle.Render("Type /help for commands, Ctrl+C cancels a reply, Ctrl+D exits."))
	fmt.Fprintln(w)
}

func printChatHelp(w io.Writer) {
	fmt.Fprintln(w, SectionStyle.Render("Chat commands:"))
	rows := [][2]string{
		{"/image <path>", "Attach an image to the next message"},
		{"/image [clear]", "List or drop pending images"},
		{"/followups, /f", "Show suggested follow-ups"},
		{"/1, /2, ...", "Send a suggested follow-up"},
		{"/status, /s", "Show session status"},
		{"/new", "Start a new session"},
		{"/clear, /c", "Clear the conversation history"},
		{"/quit, /q", "Exit"},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s%s\n", RenderLabel(r[0], 20), r[1])
	}
}

func (cs *ChatSession) printStatus() {
	w := cs.App.Out
	sid := cs.SessionID()
	fmt.Fprintln(w, SectionStyle.Render("Session status"))
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Session:"), sid)
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Transport:"), cs.App.Transport)
	fmt.Fprintf(w, "%s%d\n", RenderLabel("Messages sent:"), cs.Sent)
	fmt.Fprintf(w, "%s%d\n", RenderLabel("Pending images:"), len(cs.Pending))
	if st, ok := cs.Ctrl.Status(sid); ok {
		fmt.Fprintf(w, "%s%d\n", RenderLabel("History messages:"), st.Messages)
		if st.Streaming {
			fmt.Fprintf(w, "%s%s (%s)\n", RenderLabel("Active reply:"), st.StreamID, st.State)
		}
	}
	fmt.Fprintf(w, "%s%s\n", RenderLabel("Duration:"), session.FormatDuration(time.Since(cs.StartTime)))
}

func (cs *ChatSession) printExitSummary() {
	if cs.Quiet {
		return
	}
	fmt.Fprintf(cs.App.Out, "%s %d message(s) in %s\n",
		DimStyle.Render("[Session ended]"),
		cs.Sent,
		session.FormatDuration(time.Since(cs.StartTime)))
}
