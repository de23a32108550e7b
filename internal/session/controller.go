// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/arth-chat/internal/logging"
	"github.com/jeranaias/arth-chat/internal/model"
	"github.com/jeranaias/arth-chat/internal/reply"
	"github.com/jeranaias/arth-chat/internal/util"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("session controller closed")

	// ErrNoSession is returned when a request has no session ID.
	ErrNoSession = errors.New("request has no session id")

	// ErrSuperseded is returned when another Send for the same session won
	// while this one was still opening its connection.
	ErrSuperseded = errors.New("send superseded by a newer send")
)

// =============================================================================
// REQUEST AND OPENER
// =============================================================================

// Request is one outgoing chat message.
type Request struct {
	SessionID  string
	CustomerID string
	Message    string
	Medias     []reply.Media
}

// Opener opens the reply byte source for a request.
type Opener interface {
	Open(ctx context.Context, req Request) (reply.Source, error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc func(ctx context.Context, req Request) (reply.Source, error)

// Open calls f.
func (f OpenerFunc) Open(ctx context.Context, req Request) (reply.Source, error) {
	return f(ctx, req)
}

// NewSessionID returns a fresh session identifier.
func NewSessionID() string {
	return "session_" + uuid.NewString()
}

// =============================================================================
// CALLBACKS
// =============================================================================

// Callbacks receive the events of one reply. They run synchronously, one at
// a time per session, in event order. Nil callbacks are skipped.
//
// A cancelled reply gets no OnTerminal; use Handle.Done for completion.
type Callbacks struct {
	OnPartial    func(text string)
	OnStructured func(p *reply.Payload)
	OnFallback   func(text string)
	OnError      func(kind reply.ErrorKind, err error)
	OnTerminal   func()
}

func (cb Callbacks) dispatch(ev reply.Event) {
	switch ev.Type {
	case reply.EventPartial:
		if cb.OnPartial != nil {
			cb.OnPartial(ev.Text)
		}
	case reply.EventStructured:
		if cb.OnStructured != nil {
			cb.OnStructured(ev.Payload)
		}
	case reply.EventFallbackText:
		if cb.OnFallback != nil {
			cb.OnFallback(ev.Text)
		}
	case reply.EventError:
		if cb.OnError != nil {
			cb.OnError(ev.Kind, ev.Err)
		}
	case reply.EventTerminal:
		if cb.OnTerminal != nil {
			cb.OnTerminal()
		}
	}
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.log = l
		}
	}
}

// Controller keeps at most one active reply stream per session.
//
// Each session carries a generation counter. Send bumps it before cancelling
// the previous stream, and every event is checked against it under the
// session's delivery lock. Once Send returns, no callback of the superseded
// stream starts; one that is already running finishes before the first
// callback of the new stream.
type Controller struct {
	opener Opener
	log    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState
	closed   bool
}

type sessionState struct {
	id        string
	deliverMu sync.Mutex
	gen       atomic.Uint64 // written under Controller.mu
	active    *Handle       // guarded by Controller.mu
	history   *model.Conversation
	sends     int
	startTime time.Time
}

// NewController creates a controller that opens replies with opener.
func NewController(opener Opener, opts ...Option) *Controller {
	c := &Controller{
		opener:   opener,
		log:      logging.Logger(),
		sessions: make(map[string]*sessionState),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// session returns the state for id, creating it. Caller holds c.mu.
func (c *Controller) session(id string) *sessionState {
	ss, ok := c.sessions[id]
	if !ok {
		ss = &sessionState{
			id:        id,
			history:   model.NewConversation(id),
			startTime: time.Now(),
		}
		c.sessions[id] = ss
	}
	return ss
}

// Send starts a reply for req. An active reply of the same session is
// cancelled first.
func (c *Controller) Send(ctx context.Context, req Request, cb Callbacks) (*Handle, error) {
	if req.SessionID == "" {
		return nil, ErrNoSession
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	ss := c.session(req.SessionID)
	gen := ss.gen.Add(1)
	prev := ss.active
	ss.active = nil
	ss.sends++
	c.mu.Unlock()

	if prev != nil && prev.cancelStream() {
		c.log.Debug("superseded active reply", "session", req.SessionID, "stream", prev.StreamID)
	}

	ss.history.AddUserMessage(req.Message, req.Medias...)

	src, err := c.opener.Open(ctx, req)
	if err != nil {
		ss.history.AddSystemMessage("send failed: " + err.Error())
		return nil, fmt.Errorf("open reply: %w", err)
	}

	h := &Handle{
		SessionID: req.SessionID,
		ctrl:      c,
		sess:      ss,
		gen:       gen,
		cb:        cb,
		msg:       model.NewAssistantMessage(),
		done:      make(chan struct{}),
	}
	h.stream = reply.NewStream(src, h.deliver, reply.WithLogger(c.log.With("session", req.SessionID)))
	h.StreamID = h.stream.ID()

	c.mu.Lock()
	if c.closed || ss.gen.Load() != gen {
		c.mu.Unlock()
		h.stream.Cancel()
		if c.closed {
			return nil, ErrClosed
		}
		return nil, ErrSuperseded
	}
	ss.active = h
	c.mu.Unlock()

	ss.history.PutReply(h.Reply())
	h.stream.Start(ctx)
	go h.watch()

	c.log.Debug("reply started", "session", req.SessionID, "stream", h.StreamID)
	return h, nil
}

// CancelActive cancels the active reply of a session. It returns false if
// there was none or it had already finished.
func (c *Controller) CancelActive(sessionID string) bool {
	h := c.Active(sessionID)
	if h == nil {
		return false
	}
	return h.Cancel()
}

// Active returns the active reply of a session, or nil.
func (c *Controller) Active(sessionID string) *Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ss, ok := c.sessions[sessionID]; ok {
		return ss.active
	}
	return nil
}

// History returns the conversation of a session, or nil if the session has
// never sent anything.
func (c *Controller) History(sessionID string) *model.Conversation {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ss, ok := c.sessions[sessionID]; ok {
		return ss.history
	}
	return nil
}

// Close cancels every active reply. Later Sends fail with ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	var active []*Handle
	for _, ss := range c.sessions {
		if ss.active != nil {
			active = append(active, ss.active)
		}
	}
	c.mu.Unlock()

	for _, h := range active {
		h.Cancel()
	}
}

// release clears h as the active reply of its session and fences off any
// of its events still in flight.
func (c *Controller) release(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if h.sess.active == h {
		h.sess.active = nil
		h.sess.gen.Add(1)
	}
}

// =============================================================================
// HANDLE
// =============================================================================

// Handle is one reply started by Send.
type Handle struct {
	SessionID string
	StreamID  string

	ctrl   *Controller
	sess   *sessionState
	stream *reply.Stream
	gen    uint64
	cb     Callbacks

	mu  sync.Mutex
	msg *model.Message

	done chan struct{}
}

// deliver runs on the stream goroutine for every event.
func (h *Handle) deliver(ev reply.Event) {
	h.sess.deliverMu.Lock()
	defer h.sess.deliverMu.Unlock()

	h.mu.Lock()
	h.msg.Apply(ev)
	h.mu.Unlock()

	if h.sess.gen.Load() != h.gen {
		return
	}
	h.cb.dispatch(ev)
}

// watch settles the handle once its stream has stopped.
func (h *Handle) watch() {
	<-h.stream.Done()

	if h.stream.State() == reply.StateCancelled {
		h.markCancelled()
	}
	h.ctrl.release(h)
	h.sess.history.PutReply(h.Reply())
	close(h.done)
}

// cancelStream cancels the stream without touching session bookkeeping.
func (h *Handle) cancelStream() bool {
	if !h.stream.Cancel() {
		return false
	}
	h.markCancelled()
	return true
}

func (h *Handle) markCancelled() {
	h.mu.Lock()
	h.msg.MarkCancelled()
	h.mu.Unlock()
}

// Cancel stops the reply. It returns false if the reply already finished.
func (h *Handle) Cancel() bool {
	if !h.cancelStream() {
		return false
	}
	h.ctrl.release(h)
	return true
}

// Reply returns a snapshot of the accumulated reply.
func (h *Handle) Reply() model.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.msg.Clone()
}

// State returns the stream state.
func (h *Handle) State() reply.State {
	return h.stream.State()
}

// Err returns the transport error of a failed reply.
func (h *Handle) Err() error {
	return h.stream.Err()
}

// Done is closed when the reply has stopped for any reason and its final
// snapshot is available from Reply.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the reply stops or ctx ends.
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// SESSION STATUS
// =============================================================================

// Status describes a session.
type Status struct {
	SessionID string
	StreamID  string
	State     reply.State
	Streaming bool
	Sends     int
	Messages  int
	StartTime time.Time
	Duration  time.Duration
}

// Status returns the status of a session.
func (c *Controller) Status(sessionID string) (Status, bool) {
	c.mu.Lock()
	ss, ok := c.sessions[sessionID]
	if !ok {
		c.mu.Unlock()
		return Status{}, false
	}
	st := Status{
		SessionID: ss.id,
		Sends:     ss.sends,
		StartTime: ss.startTime,
		Duration:  time.Since(ss.startTime),
	}
	active := ss.active
	c.mu.Unlock()

	st.Messages = ss.history.Len()
	if active != nil {
		st.StreamID = active.StreamID
		st.State = active.State()
		st.Streaming = !st.State.Done()
	}
	return st, true
}

// FormatDuration returns a human-readable duration string.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		secs := int(d.Seconds())
		return util.IntToString(secs) + "s"
	}
	mins := int(d.Minutes())
	secs := int(d.Seconds()) % 60
	if secs == 0 {
		return util.IntToString(mins) + "m"
	}
	return util.IntToString(mins) + "m " + util.IntToString(secs) + "s"
}
