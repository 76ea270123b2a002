package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedAudio is matched by every *MalformedAudioError.
var ErrMalformedAudio = errors.New("pcm: malformed audio")

// MalformedAudioError reports a PCM16 payload that does not fit the declared
// channel framing.
type MalformedAudioError struct {
	Len        int
	Channels   int
	SampleRate int
}

func (e *MalformedAudioError) Error() string {
	switch {
	case e.Channels < 1:
		return fmt.Sprintf("pcm: malformed audio: invalid channel count %d", e.Channels)
	case e.SampleRate < 1:
		return fmt.Sprintf("pcm: malformed audio: invalid sample rate %d", e.SampleRate)
	}
	return fmt.Sprintf("pcm: malformed audio: %d bytes is not a multiple of %d", e.Len, 2*e.Channels)
}

// Is reports whether target is ErrMalformedAudio.
func (e *MalformedAudioError) Is(target error) bool {
	return target == ErrMalformedAudio
}

// Buffer is decoded audio: one float32 slice per channel, samples in [-1, 1].
type Buffer struct {
	SampleRate int
	Data       [][]float32
}

// NewBuffer allocates a silent buffer.
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	data := make([][]float32, channels)
	for c := range data {
		data[c] = make([]float32, frames)
	}
	return &Buffer{SampleRate: sampleRate, Data: data}
}

// Channels returns the number of channels.
func (b *Buffer) Channels() int {
	return len(b.Data)
}

// Frames returns the number of sample frames per channel.
func (b *Buffer) Frames() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Mono returns the average of all channels. For a mono buffer the channel
// slice itself is returned.
func (b *Buffer) Mono() []float32 {
	switch len(b.Data) {
	case 0:
		return nil
	case 1:
		return b.Data[0]
	}
	out := make([]float32, b.Frames())
	scale := 1 / float32(len(b.Data))
	for _, ch := range b.Data {
		for i, s := range ch {
			out[i] += s * scale
		}
	}
	return out
}

// EncodeFrame converts float samples to little-endian PCM16. Each sample s
// becomes round(s*32768) clamped to the int16 range; NaN encodes as 0.
func EncodeFrame(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	v := math.Round(float64(s) * 32768)
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

// DecodeFrame interprets b as interleaved little-endian PCM16 and splits it
// into per-channel float samples (value / 32768).
func DecodeFrame(b []byte, sampleRate, channels int) (*Buffer, error) {
	if channels < 1 || sampleRate < 1 || len(b)%(2*channels) != 0 {
		return nil, &MalformedAudioError{Len: len(b), Channels: channels, SampleRate: sampleRate}
	}
	frames := len(b) / 2 / channels
	buf := NewBuffer(sampleRate, channels, frames)
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			v := int16(binary.LittleEndian.Uint16(b[(i*channels+c)*2:]))
			buf.Data[c][i] = float32(v) / 32768
		}
	}
	return buf, nil
}

// EncodeText encodes PCM bytes for a text transport (standard base64).
func EncodeText(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeText reverses EncodeText.
func DecodeText(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("pcm: decode transport text: %w", err)
	}
	return b, nil
}
