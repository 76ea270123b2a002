//go:build cgo

package portaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/haivivi/nova/pkg/audio/pcm"
)

// Microphone acquires capture streams on the default input device.
type Microphone struct {
	// SampleRate is the capture rate. Defaults to 16000.
	SampleRate int
	// FramesPerBuffer is the number of frames per read. Defaults to 4096.
	FramesPerBuffer int
}

// Acquire opens a mono float32 input stream. It fails when no input device
// exists or the host denies access.
func (m *Microphone) Acquire(ctx context.Context) (pcm.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rate := m.SampleRate
	if rate == 0 {
		rate = 16000
	}
	frames := m.FramesPerBuffer
	if frames == 0 {
		frames = 4096
	}
	s, err := openStream(true, 1, sampleFloat32, float64(rate), frames)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open input: %w", err)
	}
	return &InputStream{stream: s, rate: rate}, nil
}

// InputStream captures mono float samples from the default input device.
type InputStream struct {
	stream *stream
	rate   int
}

var _ pcm.Capture = (*InputStream)(nil)

// Read blocks for one device buffer and copies it into p. A p shorter than
// the device buffer receives only its prefix.
func (is *InputStream) Read(p []float32) (int, error) {
	return is.stream.readFloat32(p)
}

// SampleRate returns the capture rate.
func (is *InputStream) SampleRate() int {
	return is.rate
}

// Close stops and closes the stream.
func (is *InputStream) Close() error {
	return is.stream.close()
}

// OutputStream plays PCM16 chunks on the default output device. Writes block
// while the device queue is full, which paces a pcm.Renderer in real time.
type OutputStream struct {
	stream  *stream
	format  pcm.Format
	samples []int16
}

var _ pcm.Writer = (*OutputStream)(nil)

// NewOutputStream creates a new output stream for playback.
// format: PCM format (e.g., pcm.L16Mono24K)
// bufferDuration: duration of each device buffer (e.g., 20ms)
func NewOutputStream(format pcm.Format, bufferDuration time.Duration) (*OutputStream, error) {
	frames := int(format.SamplesInDuration(bufferDuration))
	s, err := openStream(false, format.Channels(), sampleInt16, float64(format.SampleRate()), frames)
	if err != nil {
		return nil, fmt.Errorf("portaudio: open output: %w", err)
	}
	return &OutputStream{stream: s, format: format}, nil
}

// Write implements pcm.Writer. Chunks longer than one device buffer are
// written in several buffers.
func (os *OutputStream) Write(chunk pcm.Chunk) error {
	if chunk.Format() != os.format {
		return fmt.Errorf("portaudio: chunk format %v, want %v", chunk.Format(), os.format)
	}
	dc, ok := chunk.(*pcm.DataChunk)
	if !ok {
		return fmt.Errorf("portaudio: unsupported chunk %T", chunk)
	}
	n := len(dc.Data) / 2
	if cap(os.samples) < n {
		os.samples = make([]int16, n)
	}
	samples := os.samples[:n]
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(dc.Data[i*2:]))
	}
	per := os.stream.frames * os.stream.channels
	for len(samples) > 0 {
		m := min(per, len(samples))
		if err := os.stream.writeInt16(samples[:m]); err != nil {
			return err
		}
		samples = samples[m:]
	}
	return nil
}

// Format returns the PCM format.
func (os *OutputStream) Format() pcm.Format {
	return os.format
}

// Close stops and closes the stream.
func (os *OutputStream) Close() error {
	return os.stream.close()
}
