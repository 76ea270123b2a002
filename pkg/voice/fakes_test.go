package voice

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/haivivi/nova/pkg/audio/pcm"
)

// fakePlayer is a pcm.Player with a settable clock. Buffers end only when
// the test calls finish or Stop is called.
type fakePlayer struct {
	mu         sync.Mutex
	now        float64
	scheduled  []*fakePlayback
	failNext   error
	block      chan struct{}
	scheduling chan struct{}
}

type fakePlayback struct {
	at       float64
	duration float64
	frames   int
	onEnded  func()
	once     sync.Once
	stopped  atomic.Bool
	ended    atomic.Bool
}

func (p *fakePlayer) Now() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.now
}

func (p *fakePlayer) setNow(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.now = t
}

// hold makes the next Schedule calls wait until release is called. The
// returned channel receives once per waiting call.
func (p *fakePlayer) hold() (scheduling <-chan struct{}, release func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.block = make(chan struct{})
	p.scheduling = make(chan struct{}, 8)
	block := p.block
	return p.scheduling, func() { close(block) }
}

func (p *fakePlayer) Schedule(buf *pcm.Buffer, at float64, onEnded func()) (pcm.Playback, error) {
	p.mu.Lock()
	block, scheduling := p.block, p.scheduling
	p.mu.Unlock()
	if block != nil {
		scheduling <- struct{}{}
		<-block
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.failNext; err != nil {
		p.failNext = nil
		return nil, err
	}
	pb := &fakePlayback{at: at, duration: buf.Duration(), frames: buf.Frames(), onEnded: onEnded}
	p.scheduled = append(p.scheduled, pb)
	return pb, nil
}

func (p *fakePlayer) all() []*fakePlayback {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*fakePlayback, len(p.scheduled))
	copy(out, p.scheduled)
	return out
}

func (p *fakePlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.scheduled)
}

// finish plays every scheduled buffer to the end.
func (p *fakePlayer) finish() {
	for _, pb := range p.all() {
		pb.finish()
	}
}

func (pb *fakePlayback) Stop() {
	pb.stopped.Store(true)
	pb.finish()
}

func (pb *fakePlayback) finish() {
	pb.once.Do(func() {
		pb.ended.Store(true)
		if pb.onEnded != nil {
			pb.onEnded()
		}
	})
}

// fakeStream is a CaptureStream fed by the test.
type fakeStream struct {
	rate      int
	frames    chan []float32
	closed    chan struct{}
	closeOnce sync.Once
	closes    atomic.Int32
}

func newFakeStream(rate int) *fakeStream {
	return &fakeStream{
		rate:   rate,
		frames: make(chan []float32, 64),
		closed: make(chan struct{}),
	}
}

func (s *fakeStream) Read(p []float32) (int, error) {
	select {
	case f := <-s.frames:
		return copy(p, f), nil
	case <-s.closed:
		return 0, io.EOF
	}
}

func (s *fakeStream) SampleRate() int {
	return s.rate
}

func (s *fakeStream) Close() error {
	s.closes.Add(1)
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// feed pushes n samples of value v.
func (s *fakeStream) feed(n int, v float32) {
	f := make([]float32, n)
	for i := range f {
		f[i] = v
	}
	s.frames <- f
}

// fakeMic hands out fakeStreams or fails.
type fakeMic struct {
	mu      sync.Mutex
	err     error
	streams []*fakeStream
}

func (m *fakeMic) Acquire(ctx context.Context) (CaptureStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s := newFakeStream(InputSampleRate)
	m.streams = append(m.streams, s)
	return s, nil
}

func (m *fakeMic) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

func (m *fakeMic) last() *fakeStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.streams) == 0 {
		return nil
	}
	return m.streams[len(m.streams)-1]
}

type eventOrError struct {
	msg *ServerMessage
	err error
}

// fakeConn is a Conn driven by the test.
type fakeConn struct {
	inbound   chan eventOrError
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	sent    []Media
	sendErr error
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		inbound: make(chan eventOrError, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) SendRealtimeInput(m Media) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	if c.isClosed() {
		return errors.New("fake: connection closed")
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *fakeConn) Events() iter.Seq2[*ServerMessage, error] {
	return func(yield func(*ServerMessage, error) bool) {
		for {
			select {
			case <-c.closed:
				return
			case item, ok := <-c.inbound:
				if !ok {
					return
				}
				if !yield(item.msg, item.err) || item.err != nil {
					return
				}
			}
		}
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) push(msg *ServerMessage) {
	c.inbound <- eventOrError{msg: msg}
}

func (c *fakeConn) fail(err error) {
	c.inbound <- eventOrError{err: err}
}

// hangUp ends the event stream cleanly, as a server close does.
func (c *fakeConn) hangUp() {
	close(c.inbound)
}

func (c *fakeConn) sentMedia() []Media {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Media, len(c.sent))
	copy(out, c.sent)
	return out
}

// fakeClient returns conns; when gate is set, Connect waits for it and
// ignores ctx, like a connection that resolves late.
type fakeClient struct {
	err        error
	gate       chan struct{}
	connecting chan struct{}

	mu    sync.Mutex
	conns []*fakeConn
}

func (c *fakeClient) Connect(ctx context.Context, cfg *LiveConfig) (Conn, error) {
	if c.connecting != nil {
		close(c.connecting)
	}
	if c.gate != nil {
		<-c.gate
	}
	if c.err != nil {
		return nil, c.err
	}
	conn := newFakeConn()
	c.mu.Lock()
	c.conns = append(c.conns, conn)
	c.mu.Unlock()
	return conn, nil
}

func (c *fakeClient) last() *fakeConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.conns) == 0 {
		return nil
	}
	return c.conns[len(c.conns)-1]
}

func (c *fakeClient) factory() ClientFactory {
	return func() (Client, error) { return c, nil }
}

// audioMessage builds a model turn carrying n PCM16 samples at 24 kHz.
func audioMessage(n int) *ServerMessage {
	return &ServerMessage{ServerContent: &ServerContent{
		ModelTurn: &Turn{Parts: []Part{{InlineData: &InlineData{
			MIMEType: "audio/pcm;rate=24000",
			Data:     pcm.EncodeText(make([]byte, n*2)),
		}}}},
	}}
}
