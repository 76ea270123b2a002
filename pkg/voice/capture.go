package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/haivivi/nova/pkg/audio/pcm"
	"github.com/haivivi/nova/pkg/audio/resampler"
)

// CaptureOption configures a CaptureBridge.
type CaptureOption interface {
	apply(*CaptureBridge)
}

type queueOption struct {
	policy QueuePolicy
	size   int
}

func (o queueOption) apply(b *CaptureBridge) {
	b.policy = o.policy
	b.queueSize = o.size
}

// WithQueue sets the outbound queue policy and bound. Defaults to
// QueueDropOldest with DefaultQueueSize.
func WithQueue(policy QueuePolicy, size int) CaptureOption {
	return queueOption{policy: policy, size: size}
}

type frameSizeOption int

func (o frameSizeOption) apply(b *CaptureBridge) {
	if o > 0 {
		b.frameSize = int(o)
	}
}

// WithFrameSize sets the number of 16 kHz samples per outbound frame.
// Defaults to FrameSize.
func WithFrameSize(n int) CaptureOption {
	return frameSizeOption(n)
}

type captureMetricsOption struct {
	m *Metrics
}

func (o captureMetricsOption) apply(b *CaptureBridge) {
	b.metrics = o.m
}

// WithCaptureMetrics records capture statistics into m.
func WithCaptureMetrics(m *Metrics) CaptureOption {
	return captureMetricsOption{m: m}
}

// CaptureBridge moves microphone audio to the transport. A capture task
// reads the stream at the device cadence, resamples to 16 kHz, cuts fixed
// size frames, encodes them as base64 PCM16 and pushes them into a
// FrameQueue. A send task pops frames in capture order and hands them to the
// transport. The capture task never waits on the transport unless the queue
// policy is QueueBlock.
type CaptureBridge struct {
	stream    CaptureStream
	frameSize int
	policy    QueuePolicy
	queueSize int
	metrics   *Metrics
	queue     *FrameQueue
	dropLog   rate.Sometimes

	captured atomic.Int64
	sent     atomic.Int64

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
}

// NewCaptureBridge creates a bridge reading from stream. The bridge owns the
// stream from now on and closes it on Stop.
func NewCaptureBridge(stream CaptureStream, opts ...CaptureOption) *CaptureBridge {
	b := &CaptureBridge{
		stream:    stream,
		frameSize: FrameSize,
		policy:    QueueDropOldest,
		queueSize: DefaultQueueSize,
		dropLog:   rate.Sometimes{First: 1, Interval: 5 * time.Second},
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt.apply(b)
	}
	b.queue = NewFrameQueue(b.policy, b.queueSize)
	return b
}

// Start launches the capture and send tasks. onFrameEncoded is called from
// the send task, one frame at a time, in capture order. If it returns an
// error both tasks stop and Wait reports the error.
func (b *CaptureBridge) Start(ctx context.Context, onFrameEncoded func(Media) error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return fmt.Errorf("voice: capture bridge: %w", ErrStopped)
	}
	if b.started {
		return errors.New("voice: capture bridge already started")
	}

	var conv *resampler.Converter
	if r := b.stream.SampleRate(); r != InputSampleRate {
		var err error
		conv, err = resampler.New(r, InputSampleRate)
		if err != nil {
			return fmt.Errorf("voice: capture bridge: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.started = true

	eg, ctx := errgroup.WithContext(ctx)
	// A failed task cancels ctx; closing the stream unblocks a pending Read.
	context.AfterFunc(ctx, func() { closeStream(b.stream) })
	eg.Go(func() error { return b.capture(ctx, conv) })
	eg.Go(func() error { return b.send(ctx, onFrameEncoded) })
	go func() {
		err := eg.Wait()
		cancel()
		b.mu.Lock()
		b.err = err
		b.mu.Unlock()
		close(b.done)
	}()
	return nil
}

// Stop stops both tasks, discards queued frames and closes the stream. It
// waits for the tasks to exit. Safe to call more than once and before Start.
func (b *CaptureBridge) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	started := b.started
	cancel := b.cancel
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	b.queue.Close()
	closeStream(b.stream)
	if started {
		<-b.done
	}
}

// Done is closed when both tasks have exited.
func (b *CaptureBridge) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until both tasks have exited and returns the first failure.
// A stop requested through Stop is not a failure.
func (b *CaptureBridge) Wait() error {
	<-b.done
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Depth returns the number of frames waiting to be sent.
func (b *CaptureBridge) Depth() int {
	return b.queue.Len()
}

// Dropped returns the number of frames discarded by the queue.
func (b *CaptureBridge) Dropped() int64 {
	return b.queue.Dropped()
}

// Captured returns the number of frames encoded.
func (b *CaptureBridge) Captured() int64 {
	return b.captured.Load()
}

// Sent returns the number of frames handed to the transport.
func (b *CaptureBridge) Sent() int64 {
	return b.sent.Load()
}

func (b *CaptureBridge) capture(ctx context.Context, conv *resampler.Converter) error {
	defer func() {
		if ctx.Err() != nil {
			b.queue.Close()
		} else {
			b.queue.closeWrite()
		}
	}()

	buf := make([]float32, b.frameSize)
	var pending []float32
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := b.stream.Read(buf)
		if ctx.Err() != nil {
			return nil
		}
		if n > 0 {
			samples := buf[:n]
			if conv != nil {
				var cerr error
				samples, cerr = conv.Process(samples)
				if cerr != nil {
					return fmt.Errorf("voice: capture: %w", cerr)
				}
			}
			pending = append(pending, samples...)

			off := 0
			for len(pending)-off >= b.frameSize {
				if perr := b.push(pending[off : off+b.frameSize]); perr != nil {
					return nil
				}
				off += b.frameSize
			}
			pending = pending[:copy(pending, pending[off:])]
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("voice: capture: %w", err)
		}
	}
}

func (b *CaptureBridge) push(frame []float32) error {
	data := pcm.EncodeFrame(frame)
	m := Media{
		Data:     pcm.EncodeText(data),
		MIMEType: pcm.MIMEType(InputSampleRate),
	}
	before := b.queue.Dropped()
	if err := b.queue.Push(m); err != nil {
		return err
	}
	b.captured.Add(1)

	dropped := b.queue.Dropped() - before
	if dropped > 0 {
		b.dropLog.Do(func() {
			slog.Warn("voice: outbound queue full, dropping oldest frames",
				"dropped", b.queue.Dropped(), "depth", b.queue.Len())
		})
	}
	b.metrics.frameCaptured(len(data), b.queue.Len(), dropped)
	return nil
}

func (b *CaptureBridge) send(ctx context.Context, onFrameEncoded func(Media) error) error {
	defer b.queue.Close()
	for {
		m, err := b.queue.Pop()
		if err != nil {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
		if err := onFrameEncoded(m); err != nil {
			return fmt.Errorf("voice: send frame: %w", err)
		}
		b.sent.Add(1)
		b.metrics.frameSent(b.queue.Len())
	}
}
