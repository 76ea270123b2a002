package voice

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/haivivi/nova/pkg/audio/pcm"
	"github.com/haivivi/nova/pkg/buffer"
)

// EventKind identifies a session Event.
type EventKind int

// Event kinds.
const (
	// EventStatus reports a status change.
	EventStatus EventKind = iota
	// EventTranscript reports a new transcript entry.
	EventTranscript
	// EventError reports the error placed in the error slot.
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventTranscript:
		return "transcript"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is a session notification for presentation layers.
type Event struct {
	Kind   EventKind
	Status Status
	Entry  TranscriptEntry
	Err    *Error
}

// eventBacklog bounds the undelivered notifications; the oldest are dropped
// when nobody consumes Events.
const eventBacklog = 256

// Option configures a Session.
type Option interface {
	apply(*Session)
}

type liveConfigOption LiveConfig

func (o liveConfigOption) apply(s *Session) {
	s.live = LiveConfig(o)
}

// WithLiveConfig sets the connect-time configuration. Defaults to
// DefaultLiveConfig().
func WithLiveConfig(cfg LiveConfig) Option {
	return liveConfigOption(cfg)
}

type captureOptions []CaptureOption

func (o captureOptions) apply(s *Session) {
	s.captureOpts = append(s.captureOpts, o...)
}

// WithCaptureOptions passes options to the CaptureBridge of every
// connection.
func WithCaptureOptions(opts ...CaptureOption) Option {
	return captureOptions(opts)
}

type metricsOption struct {
	m *Metrics
}

func (o metricsOption) apply(s *Session) {
	s.metrics = o.m
}

// WithMetrics records session metrics into m.
func WithMetrics(m *Metrics) Option {
	return metricsOption{m: m}
}

// Session is a full-duplex voice conversation. It moves through
// Idle → Connecting → Listening ⇄ Speaking and back to Idle on Stop,
// transport error or transport close.
//
// While Listening or Speaking the session holds exactly one connection and
// one microphone stream; while Idle it holds neither. A stream acquired while
// Connecting is owned by the session from the moment Acquire returns. Inbound messages are
// dispatched on one goroutine per connection in arrival order. All state is
// guarded by one mutex and a generation counter that invalidates callbacks
// from a previous connection.
type Session struct {
	clients     ClientFactory
	mic         Microphone
	player      pcm.Player
	live        LiveConfig
	captureOpts []CaptureOption
	metrics     *Metrics

	transcript *TranscriptLog
	events     *buffer.RingBuffer[Event]
	badChunk   rate.Sometimes

	mu          sync.Mutex
	gen         uint64
	starting    bool
	status      Status
	err         *Error
	cancelStart context.CancelFunc
	conn        Conn
	stream      CaptureStream
	bridge      *CaptureBridge
	sched       *PlaybackScheduler
	startedAt   time.Time
}

// NewSession creates an idle session. clients provides the credentialed
// transport, mic the capture device and player the output device.
func NewSession(clients ClientFactory, mic Microphone, player pcm.Player, opts ...Option) *Session {
	s := &Session{
		clients:    clients,
		mic:        mic,
		player:     player,
		live:       DefaultLiveConfig(),
		transcript: NewTranscriptLog(),
		events:     buffer.RingN[Event](eventBacklog),
		badChunk:   rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt.apply(s)
	}
	return s
}

// Status returns the current status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the error slot: the failure of the last start attempt or the
// error that ended the last session. Starting again clears it.
func (s *Session) Err() *Error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Transcript returns the recent transcript, oldest first.
func (s *Session) Transcript() []TranscriptEntry {
	return s.transcript.Entries()
}

// Events yields notifications in the order they happened until Close is
// called. It is meant for a single consumer. Events are queued under the
// session lock and delivered on the consumer's goroutine.
func (s *Session) Events() iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			ev, err := s.events.Next()
			if err != nil {
				return
			}
			if !yield(ev) {
				return
			}
		}
	}
}

// Start acquires the microphone, opens a connection and starts streaming.
// It blocks until the session is Listening or the attempt failed.
//
// Start returns ErrSessionActive if the session is not Idle or an earlier
// attempt that was stopped has not returned yet, and ErrStopped if Stop was
// called while connecting. Other failures return an *Error that is also
// placed in the error slot. ctx bounds only the start attempt.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusIdle || s.starting {
		s.mu.Unlock()
		return ErrSessionActive
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(ctx)
	s.cancelStart = cancel
	s.starting = true
	s.err = nil
	s.transcript.Reset()
	s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.starting = false
		s.mu.Unlock()
	}()
	return s.connect(ctx, gen)
}

func (s *Session) connect(ctx context.Context, gen uint64) error {
	client, err := s.clients()
	if err != nil {
		code := CodeMissingCredential
		if e, ok := AsError(err); ok {
			code = e.Code
		}
		return s.failStart(gen, NewError(code, MessageStartFailed, err))
	}

	stream, err := s.mic.Acquire(ctx)
	if err != nil {
		return s.failStart(gen, NewError(CodePermission, MessageStartFailed, err))
	}
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		closeStream(stream)
		return ErrStopped
	}
	s.stream = stream
	s.mu.Unlock()

	cfg := s.live
	conn, err := client.Connect(ctx, &cfg)
	if err != nil {
		return s.failStart(gen, NewError(CodeConnection, MessageStartFailed, err))
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		slog.Debug("voice: discarding connection opened after stop")
		closeConn(conn)
		return ErrStopped
	}
	s.conn = conn
	s.sched = NewPlaybackScheduler(s.player, func() { s.drained(gen) })
	opts := append([]CaptureOption{WithCaptureMetrics(s.metrics)}, s.captureOpts...)
	s.bridge = NewCaptureBridge(stream, opts...)
	bridge := s.bridge
	if err := bridge.Start(context.WithoutCancel(ctx), conn.SendRealtimeInput); err != nil {
		res := s.teardownLocked()
		s.setErrorLocked(NewError(CodePermission, MessageStartFailed, err))
		s.mu.Unlock()
		res.release()
		s.metrics.sessionFailed()
		return s.Err()
	}
	s.startedAt = time.Now()
	s.setStatusLocked(StatusListening)
	s.mu.Unlock()

	s.metrics.sessionStarted()
	slog.Info("voice: session started", "model", cfg.Model)

	go s.receive(gen, conn)
	go s.watchCapture(gen, bridge)
	return nil
}

// Stop ends the session from any state. Stopping while Connecting makes the
// pending Start discard its connection and return ErrStopped. Stopping an
// idle session does nothing.
func (s *Session) Stop() {
	s.end(0, nil, false)
}

// Close stops the session and ends the Events stream.
func (s *Session) Close() error {
	s.Stop()
	return s.events.CloseWrite()
}

// end tears the session down. A non-zero gen restricts the teardown to that
// connection; cause, if not nil, fills the error slot.
func (s *Session) end(gen uint64, cause *Error, closedByPeer bool) {
	s.mu.Lock()
	if s.status == StatusIdle || (gen != 0 && gen != s.gen) {
		s.mu.Unlock()
		return
	}
	wasLive := s.conn != nil
	res := s.teardownLocked()
	if cause != nil {
		s.setErrorLocked(cause)
	}
	s.mu.Unlock()

	res.release()
	if wasLive {
		result := "stopped"
		switch {
		case cause != nil:
			result = "error"
		case closedByPeer:
			result = "closed"
		}
		s.metrics.sessionEnded(result)
		slog.Info("voice: session ended", "result", result, "duration", time.Since(res.startedAt).Round(time.Millisecond))
	}
}

// resources are handles taken out of the session under the lock and
// released outside of it.
type resources struct {
	cancel    context.CancelFunc
	bridge    *CaptureBridge
	stream    CaptureStream
	conn      Conn
	sched     *PlaybackScheduler
	startedAt time.Time
}

func (s *Session) teardownLocked() resources {
	res := resources{
		cancel:    s.cancelStart,
		bridge:    s.bridge,
		stream:    s.stream,
		conn:      s.conn,
		sched:     s.sched,
		startedAt: s.startedAt,
	}
	s.gen++
	s.cancelStart = nil
	s.bridge = nil
	s.stream = nil
	s.conn = nil
	s.sched = nil
	s.setStatusLocked(StatusIdle)
	return res
}

func (r resources) release() {
	if r.cancel != nil {
		r.cancel()
	}
	if r.bridge != nil {
		r.bridge.Stop()
	}
	if r.stream != nil {
		closeStream(r.stream)
	}
	if r.conn != nil {
		closeConn(r.conn)
	}
	if r.sched != nil {
		r.sched.Interrupt()
	}
}

func (s *Session) failStart(gen uint64, e *Error) error {
	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		return ErrStopped
	}
	res := s.teardownLocked()
	s.setErrorLocked(e)
	s.mu.Unlock()

	res.release()
	s.metrics.sessionFailed()
	slog.Warn("voice: start failed", "code", e.Code, "error", e.Err)
	return e
}

// receive dispatches inbound messages of one connection in arrival order.
func (s *Session) receive(gen uint64, conn Conn) {
	for msg, err := range conn.Events() {
		if err != nil {
			slog.Error("voice: connection error", "error", err)
			s.end(gen, NewError(CodeConnection, MessageConnectionLost, err), false)
			return
		}
		if msg != nil {
			s.dispatch(gen, msg)
		}
	}
	s.end(gen, nil, true)
}

// watchCapture ends the session when capture stops on its own. A bridge
// stopped by a teardown belongs to an old generation and is ignored.
func (s *Session) watchCapture(gen uint64, bridge *CaptureBridge) {
	if err := bridge.Wait(); err != nil {
		slog.Error("voice: capture stopped", "error", err)
		s.end(gen, NewError(CodeConnection, MessageConnectionLost, err), false)
		return
	}
	s.mu.Lock()
	current := gen == s.gen
	s.mu.Unlock()
	if current {
		slog.Warn("voice: microphone stream ended")
		s.end(gen, NewError(CodePermission, MessageConnectionLost, ErrCaptureEnded), false)
	}
}

// dispatch handles one inbound message: audio first, then interruption,
// then transcripts.
func (s *Session) dispatch(gen uint64, msg *ServerMessage) {
	sc := msg.ServerContent
	if sc == nil {
		if msg.GoAway != nil {
			slog.Info("voice: server going away", "time_left", msg.GoAway.TimeLeft)
		}
		return
	}
	if sc.ModelTurn != nil {
		for _, part := range sc.ModelTurn.Parts {
			if part.InlineData != nil && part.InlineData.Data != "" {
				s.playAudio(gen, part.InlineData)
			}
		}
	}
	if sc.Interrupted {
		s.interrupt(gen)
	}
	if t := sc.InputTranscription; t != nil && t.Text != "" {
		s.appendTranscript(gen, SpeakerUser, t.Text)
	}
	if t := sc.OutputTranscription; t != nil && t.Text != "" {
		s.appendTranscript(gen, SpeakerModel, t.Text)
	}
}

// playAudio decodes and schedules a chunk outside the session lock. Only
// the dispatch goroutine enqueues, so the scheduler can change under it only
// through a teardown; audio that lands on a torn-down scheduler is stopped.
func (s *Session) playAudio(gen uint64, data *InlineData) {
	s.mu.Lock()
	sched := s.sched
	if gen != s.gen || sched == nil {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	raw, err := pcm.DecodeText(data.Data)
	if err == nil {
		_, err = sched.Enqueue(raw, pcm.ParseRate(data.MIMEType, OutputSampleRate), 1)
	}
	if err != nil {
		s.metrics.chunkMalformed()
		s.badChunk.Do(func() {
			slog.Warn("voice: dropping audio chunk", "mime_type", data.MIMEType, "len", len(data.Data), "error", err)
		})
		return
	}
	s.metrics.chunkPlayed(len(raw))

	s.mu.Lock()
	if gen != s.gen || sched != s.sched {
		s.mu.Unlock()
		sched.Interrupt()
		return
	}
	if sched.Active() > 0 {
		s.setStatusLocked(StatusSpeaking)
	}
	s.mu.Unlock()
}

func (s *Session) interrupt(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.sched == nil {
		s.mu.Unlock()
		return
	}
	sched := s.sched
	if s.status == StatusSpeaking {
		s.setStatusLocked(StatusListening)
	}
	s.mu.Unlock()

	sched.Interrupt()
	s.metrics.interrupted()
	slog.Debug("voice: playback interrupted")
}

func (s *Session) appendTranscript(gen uint64, speaker Speaker, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	e := s.transcript.Append(speaker, text)
	s.metrics.transcript(speaker)
	s.emitLocked(Event{Kind: EventTranscript, Status: s.status, Entry: e})
}

func (s *Session) drained(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.status != StatusSpeaking {
		return
	}
	s.setStatusLocked(StatusListening)
}

func (s *Session) setStatusLocked(st Status) {
	if s.status == st {
		return
	}
	s.status = st
	s.emitLocked(Event{Kind: EventStatus, Status: st})
}

func (s *Session) setErrorLocked(e *Error) {
	s.err = e
	s.emitLocked(Event{Kind: EventError, Status: s.status, Err: e})
}

func (s *Session) emitLocked(ev Event) {
	// Add only fails after Close; late notifications are dropped then.
	_ = s.events.Add(ev)
}

func closeStream(stream CaptureStream) {
	if err := stream.Close(); err != nil {
		slog.Debug("voice: close capture stream", "error", err)
	}
}

func closeConn(conn Conn) {
	if err := conn.Close(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("voice: close connection", "error", err)
	}
}
