package pcm

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haivivi/nova/pkg/audio/resampler"
)

// Player schedules decoded buffers against an output clock.
type Player interface {
	// Now returns the current output clock position in seconds.
	Now() float64

	// Schedule plays buf starting at output time at (seconds). A start time
	// in the past plays immediately. onEnded is called exactly once, when
	// the buffer has been fully played or when it is stopped. It is never
	// called from within Schedule itself.
	Schedule(buf *Buffer, at float64, onEnded func()) (Playback, error)
}

// Playback is a buffer scheduled on a Player.
type Playback interface {
	// Stop cancels playback regardless of position.
	Stop()
}

// RendererOption is an option for configuring a Renderer.
type RendererOption interface {
	apply(*Renderer)
}

type periodOption struct {
	d time.Duration
}

func (o periodOption) apply(r *Renderer) {
	r.period = o.d
}

// WithPeriod sets the duration rendered per write. Defaults to 20ms.
func WithPeriod(d time.Duration) RendererOption {
	return periodOption{d: d}
}

type pacedOption struct{}

func (pacedOption) apply(r *Renderer) {
	r.paced = true
}

// WithPacing makes the renderer wait one period of wall-clock time after
// each write. Use it with sinks that do not block, such as files.
func WithPacing() RendererOption {
	return pacedOption{}
}

type gainOption struct {
	gain float32
}

func (o gainOption) apply(r *Renderer) {
	r.gain.Store(o.gain)
}

// WithGain sets the initial output gain. Defaults to 1.
func WithGain(gain float32) RendererOption {
	return gainOption{gain: gain}
}

// Renderer is a Player that mixes scheduled buffers into a continuous PCM16
// stream written to a Writer. Its clock is the number of frames rendered so
// far, so it advances at the pace the sink consumes audio.
//
// It is safe to call methods on Renderer from multiple goroutines.
type Renderer struct {
	output Format
	w      Writer
	period time.Duration
	paced  bool
	gain   atomicFloat32

	mu       sync.Mutex
	frames   int64
	sources  []*source
	chain    *chain
	closeErr error
	closed   chan struct{}
}

// chain is the resampling state of buffers scheduled back to back at one
// input rate. The converter output of each buffer is placed right after the
// previous one, so the filter never sees an artificial edge between them.
type chain struct {
	conv    *resampler.Converter
	srcRate int
	next    int64 // output frame where the next back-to-back buffer is due
	end     int64 // output frame where the converted audio ends
}

var _ Player = (*Renderer)(nil)

// NewRenderer creates a renderer producing the given output format.
func NewRenderer(output Format, w Writer, opts ...RendererOption) *Renderer {
	r := &Renderer{
		output: output,
		w:      w,
		period: 20 * time.Millisecond,
		closed: make(chan struct{}),
	}
	r.gain.Store(1)
	for _, opt := range opts {
		opt.apply(r)
	}
	return r
}

// Output returns the output format of the renderer.
func (r *Renderer) Output() Format {
	return r.output
}

// SetGain changes the output gain.
func (r *Renderer) SetGain(gain float32) {
	r.gain.Store(gain)
}

// Now returns the output clock in seconds.
func (r *Renderer) Now() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return float64(r.frames) / float64(r.output.SampleRate())
}

// Pending returns the number of buffers scheduled or playing.
func (r *Renderer) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sources)
}

// Schedule implements Player. Buffers are down-mixed to mono and resampled to
// the output rate when needed. A buffer at another rate that starts where the
// previous one ended continues the same resampling stream; its audio is
// shifted by the filter latency but joins the previous buffer without a gap.
func (r *Renderer) Schedule(buf *Buffer, at float64, onEnded func()) (Playback, error) {
	rate := r.output.SampleRate()
	data := buf.Mono()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr != nil {
		return nil, r.closeErr
	}
	start := int64(math.Round(at * float64(rate)))
	if start < r.frames {
		start = r.frames
	}
	src := &source{r: r, start: start, data: data, onEnded: onEnded}
	if buf.SampleRate != rate {
		if err := r.resampleLocked(src, buf.SampleRate); err != nil {
			return nil, err
		}
	}
	r.sources = append(r.sources, src)
	return src, nil
}

// resampleLocked converts src.data to the output rate through the chain and
// moves src to where the chain output continues.
func (r *Renderer) resampleLocked(src *source, srcRate int) error {
	rate := r.output.SampleRate()
	c := r.chain
	if c != nil && (c.srcRate != srcRate || c.end < r.frames || absDiff(src.start, c.next) > 1) {
		r.flushChainLocked()
		c = nil
	}
	if c == nil {
		conv, err := resampler.New(srcRate, rate)
		if err != nil {
			return fmt.Errorf("pcm/renderer: %w", err)
		}
		c = &chain{conv: conv, srcRate: srcRate, next: src.start, end: src.start}
		r.chain = c
	}

	out, err := c.conv.Process(src.data)
	if err != nil {
		r.chain = nil
		return fmt.Errorf("pcm/renderer: %w", err)
	}
	c.next = src.start + (int64(len(src.data))*int64(rate)+int64(srcRate/2))/int64(srcRate)
	src.start = c.end
	src.data = out
	src.chain = c
	c.end += int64(len(out))
	return nil
}

// flushChainLocked ends the current chain and schedules the audio still held
// by its filter.
func (r *Renderer) flushChainLocked() {
	c := r.chain
	if c == nil {
		return
	}
	r.chain = nil
	tail, err := c.conv.Flush()
	if err != nil || len(tail) == 0 {
		return
	}
	r.sources = append(r.sources, &source{r: r, start: max(c.end, r.frames), data: tail})
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// Run renders periods until ctx is done, the renderer is closed, or the
// writer fails. Closing the renderer makes Run return nil.
func (r *Renderer) Run(ctx context.Context) error {
	mix := make([]float32, r.output.SamplesInDuration(r.period))

	var tick <-chan time.Time
	if r.paced {
		ticker := time.NewTicker(r.period)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.closed:
			return nil
		default:
		}

		for _, src := range r.render(mix) {
			src.fire()
		}
		if err := r.w.Write(r.output.DataChunk(EncodeFrame(mix))); err != nil {
			return fmt.Errorf("pcm/renderer: write: %w", err)
		}

		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-r.closed:
				return nil
			case <-tick:
			}
		}
	}
}

// render mixes the next period into mix, advances the clock and returns the
// sources that finished inside the period.
func (r *Renderer) render(mix []float32) (ended []*source) {
	clear(mix)

	r.mu.Lock()
	defer r.mu.Unlock()

	t0 := r.frames
	t1 := t0 + int64(len(mix))
	keep := r.sources[:0]
	for _, src := range r.sources {
		src.mixInto(mix, t0)
		if src.end() <= t1 {
			ended = append(ended, src)
			continue
		}
		keep = append(keep, src)
	}
	clear(r.sources[len(keep):])
	r.sources = keep
	r.frames = t1

	// A chain that runs dry within the next period gets its filter tail
	// scheduled now, before the output reaches its end.
	if r.chain != nil && r.chain.end <= t1+int64(len(mix)) {
		r.flushChainLocked()
	}

	gain := r.gain.Load()
	for i, s := range mix {
		s *= gain
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		mix[i] = s
	}
	return ended
}

func (r *Renderer) remove(src *source) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.sources {
		if s == src {
			r.sources = append(r.sources[:i], r.sources[i+1:]...)
			if src.chain != nil && src.chain == r.chain {
				r.chain = nil
			}
			return true
		}
	}
	return false
}

// Close stops rendering. Buffers still pending are dropped without their
// completion callbacks.
func (r *Renderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closeErr != nil {
		return nil
	}
	r.closeErr = fmt.Errorf("pcm/renderer: %w", io.ErrClosedPipe)
	r.sources = nil
	r.chain = nil
	close(r.closed)
	return nil
}

type source struct {
	r       *Renderer
	chain   *chain
	start   int64
	data    []float32
	onEnded func()
	once    sync.Once
}

func (s *source) end() int64 {
	return s.start + int64(len(s.data))
}

func (s *source) mixInto(mix []float32, t0 int64) {
	from := max(s.start, t0)
	to := min(s.end(), t0+int64(len(mix)))
	for t := from; t < to; t++ {
		mix[t-t0] += s.data[t-s.start]
	}
}

func (s *source) fire() {
	s.once.Do(func() {
		if s.onEnded != nil {
			s.onEnded()
		}
	})
}

// Stop implements Playback.
func (s *source) Stop() {
	if s.r.remove(s) {
		s.fire()
	}
}

// atomicFloat32 stores a float32 behind an atomic uint32.
type atomicFloat32 struct {
	bits atomic.Uint32
}

func (af *atomicFloat32) Load() float32 {
	return math.Float32frombits(af.bits.Load())
}

func (af *atomicFloat32) Store(val float32) {
	af.bits.Store(math.Float32bits(val))
}
