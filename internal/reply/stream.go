// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package reply

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/arth-chat/internal/deframe"
	"github.com/jeranaias/arth-chat/internal/logging"
	"github.com/jeranaias/arth-chat/internal/metrics"
)

// =============================================================================
// BYTE SOURCE
// =============================================================================

// Source yields the raw chunks of one reply body.
//
// Read blocks until the next chunk is available. It returns io.EOF at the
// end of the body, possibly together with a final chunk. Read is never
// called concurrently with itself.
//
// Release frees the underlying connection. It may be called while a Read is
// in progress and should make that Read return promptly. A Stream calls
// Release exactly once.
type Source interface {
	Read(ctx context.Context) ([]byte, error)
	Release() error
}

// =============================================================================
// STATE
// =============================================================================

// State is the lifecycle state of a Stream.
type State int32

const (
	StateIdle State = iota
	StateActive
	StateFinalizing
	StateTerminal
	StateCancelled
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateFinalizing:
		return "finalizing"
	case StateTerminal:
		return "terminal"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Done reports whether the state is final.
func (s State) Done() bool {
	return s == StateTerminal || s == StateCancelled || s == StateFailed
}

// ErrNotIdle is returned by Run when the stream was already started.
var ErrNotIdle = errors.New("reply stream already started")

// =============================================================================
// STREAM
// =============================================================================

// Option configures a Stream.
type Option func(*Stream)

// WithID sets the stream identifier used in logs.
func WithID(id string) Option {
	return func(s *Stream) {
		if id != "" {
			s.id = id
		}
	}
}

// WithLogger sets the logger. The default is logging.Logger().
func WithLogger(l *slog.Logger) Option {
	return func(s *Stream) {
		if l != nil {
			s.log = l
		}
	}
}

// Stream turns one byte source into an ordered sequence of events.
//
// States move Idle → Active → Finalizing → Terminal on a clean end of input,
// Active → Failed on a read error, and Idle or Active → Cancelled on Cancel.
// Cancel is silent: once it succeeds no further Terminal event is delivered.
//
// The handler runs on the goroutine that calls Run and must not block for
// long. It may call Cancel. Cancel does not wait for an event that is
// already being delivered.
type Stream struct {
	id      string
	src     Source
	handler func(Event)
	log     *slog.Logger

	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	err    error

	releaseOnce sync.Once
	doneOnce    sync.Once
	done        chan struct{}

	dec       *deframe.Decoder
	buf       *deframe.Buffer
	anomalies int
	recovered int
	started   time.Time
}

// NewStream creates an idle stream over src. handler receives every event.
func NewStream(src Source, handler func(Event), opts ...Option) *Stream {
	if handler == nil {
		handler = func(Event) {}
	}
	s := &Stream{
		id:      "stream_" + uuid.NewString()[:8],
		src:     src,
		handler: handler,
		log:     logging.Logger(),
		done:    make(chan struct{}),
		dec:     deframe.NewDecoder(),
		buf:     deframe.NewBuffer(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("stream", s.id)
	return s
}

// ID returns the stream identifier.
func (s *Stream) ID() string {
	return s.id
}

// State returns the current state.
func (s *Stream) State() State {
	return State(s.state.Load())
}

// Done is closed once the stream has stopped and released its source.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the transport error of a failed stream.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Run reads the source until it ends, fails or the stream is cancelled.
// It returns the transport error for a failed stream and nil otherwise.
// Cancelling ctx is treated like Cancel; a ctx deadline is a transport
// failure.
func (s *Stream) Run(ctx context.Context) error {
	runCtx, ok := s.begin(ctx)
	if !ok {
		if s.State() == StateCancelled {
			return nil
		}
		return ErrNotIdle
	}
	return s.loop(ctx, runCtx)
}

// Start moves the stream to Active and reads in a new goroutine.
// It returns false if the stream was not idle.
func (s *Stream) Start(ctx context.Context) bool {
	runCtx, ok := s.begin(ctx)
	if !ok {
		return false
	}
	go func() {
		_ = s.loop(ctx, runCtx)
	}()
	return true
}

// Cancel stops an idle or active stream. It returns false if the stream has
// already reached or is finishing a final state, in which case the remaining
// events are still delivered.
func (s *Stream) Cancel() bool {
	for {
		cur := s.State()
		if cur != StateIdle && cur != StateActive {
			return false
		}
		if !s.state.CompareAndSwap(int32(cur), int32(StateCancelled)) {
			continue
		}

		s.log.Debug("stream cancelled", "from", cur)

		s.mu.Lock()
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.release()

		// An active stream closes done from its read loop.
		if cur == StateIdle {
			s.finish()
		}
		return true
	}
}

// begin performs the Idle → Active transition.
func (s *Stream) begin(ctx context.Context) (context.Context, bool) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateActive)) {
		return nil, false
	}

	// A Cancel that lands before the func is stored is caught by the state
	// check at the top of the read loop.
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.started = time.Now()
	metrics.RecordStreamStart()
	s.log.Debug("stream started")
	return runCtx, true
}

func (s *Stream) loop(parent, ctx context.Context) error {
	defer s.finish()
	defer s.release()
	defer s.recordEnd()

	for {
		if s.State() != StateActive {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return s.interrupted(parent, err)
		}

		chunk, err := s.src.Read(ctx)

		// Data that arrives after a cancel is discarded.
		if s.State() != StateActive {
			return nil
		}

		if len(chunk) > 0 {
			s.consume(chunk)
		}

		switch {
		case err == nil:
			continue
		case errors.Is(err, io.EOF):
			s.finalize()
			return nil
		case ctx.Err() != nil:
			return s.interrupted(parent, err)
		default:
			return s.fail(err)
		}
	}
}

// interrupted handles a done context: caller cancellation is a silent
// cancel, anything else is a transport failure.
func (s *Stream) interrupted(parent context.Context, err error) error {
	if errors.Is(parent.Err(), context.Canceled) {
		s.Cancel()
		return nil
	}
	if perr := parent.Err(); perr != nil {
		err = perr
	}
	return s.fail(err)
}

// consume decodes one chunk and emits its frames, or a Partial if there
// are none.
func (s *Stream) consume(chunk []byte) {
	metrics.RecordBytes(len(chunk))

	text := s.dec.Decode(chunk)
	s.noteAnomalies()

	frames := s.buf.Push(text)
	s.noteRecoveries()

	if len(frames) == 0 {
		if text == "" {
			return
		}
		if rem := s.buf.Remainder(); strings.TrimSpace(rem) != "" {
			metrics.RecordPartial()
			s.emit(Partial(rem))
		}
		return
	}

	for _, f := range frames {
		s.emit(s.classify(f))
	}
}

// finalize drains the decoder and buffer at end of input.
func (s *Stream) finalize() {
	frames := s.buf.Push(s.dec.Finish())
	s.noteAnomalies()
	s.noteRecoveries()
	for _, f := range frames {
		s.emit(s.classify(f))
	}
	rest := s.buf.Flush()

	// Past this point Cancel fails and the final events are guaranteed.
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateFinalizing)) {
		return
	}
	s.log.Debug("stream finalizing", "remainder", len(rest))

	// Only objects and arrays frame. A leftover scalar such as 42 or "done"
	// is delivered as its raw text, not parsed.
	if strings.TrimSpace(rest) != "" {
		metrics.RecordFallback()
		s.deliver(FallbackText(rest))
	}

	s.state.Store(int32(StateTerminal))
	s.deliver(Terminal())
}

// fail ends the stream with a transport failure.
func (s *Stream) fail(err error) error {
	if !s.state.CompareAndSwap(int32(StateActive), int32(StateFailed)) {
		return nil
	}

	se := &StreamError{Kind: KindTransportFailure, Err: err}
	s.mu.Lock()
	s.err = se
	s.mu.Unlock()

	s.log.Warn("stream transport failure", "error", err)
	s.deliver(Failure(KindTransportFailure, se))
	s.deliver(Terminal())
	return se
}

func (s *Stream) classify(f deframe.Frame) Event {
	ev := Classify(f)
	switch {
	case ev.Type == EventStructured:
		metrics.RecordFrame(metrics.FrameStructured)
	case ev.Kind == KindRemoteError:
		metrics.RecordFrame(metrics.FrameRemoteError)
		s.log.Debug("remote error frame", "offset", f.Offset, "error", ev.Err)
	default:
		metrics.RecordFrame(metrics.FrameMalformed)
		s.log.Debug("malformed frame", "offset", f.Offset, "error", ev.Err)
	}
	return ev
}

// emit delivers a regular event while the stream is active.
func (s *Stream) emit(ev Event) {
	if s.State() != StateActive {
		return
	}
	s.deliver(ev)
}

func (s *Stream) deliver(ev Event) {
	s.handler(ev)
}

func (s *Stream) noteAnomalies() {
	if n := s.dec.Anomalies(); n > s.anomalies {
		metrics.RecordDecodeAnomalies(n - s.anomalies)
		s.log.Debug("invalid UTF-8 replaced", "chunks", n-s.anomalies)
		s.anomalies = n
	}
}

func (s *Stream) noteRecoveries() {
	if n := s.buf.Recoveries(); n > s.recovered {
		metrics.RecordRecoveries(n - s.recovered)
		s.log.Debug("skipped unparsable fragment", "chars", n-s.recovered)
		s.recovered = n
	}
}

func (s *Stream) release() {
	s.releaseOnce.Do(func() {
		if err := s.src.Release(); err != nil {
			s.log.Debug("source release failed", "error", err)
		}
	})
}

func (s *Stream) finish() {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		if s.cancel != nil {
			s.cancel()
		}
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Stream) recordEnd() {
	final := s.State()
	outcome := metrics.OutcomeCompleted
	switch final {
	case StateCancelled:
		outcome = metrics.OutcomeCancelled
	case StateFailed:
		outcome = metrics.OutcomeFailed
	}
	metrics.RecordStreamEnd(outcome, time.Since(s.started).Seconds())
	s.log.Debug("stream finished", "state", final)
}
