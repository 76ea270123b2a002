// Package portaudio provides Go bindings for the PortAudio library.
//
// This package uses CGO to interface with the PortAudio C library. Input
// streams deliver normalized float32 samples (the microphone side of the
// voice pipeline); output streams accept PCM16 chunks (the renderer side).
//
// For go build: requires portaudio installed via pkg-config (brew install portaudio)
package portaudio

/*
#cgo pkg-config: portaudio-2.0

#include <portaudio.h>
#include <stdlib.h>
#include <string.h>

// Wrapper functions using void* to avoid CGO type issues with PaStream
static PaError pa_open_stream(void **stream,
                              const PaStreamParameters *inputParams,
                              const PaStreamParameters *outputParams,
                              double sampleRate,
                              unsigned long framesPerBuffer,
                              PaStreamFlags streamFlags) {
    return Pa_OpenStream((PaStream**)stream, inputParams, outputParams, sampleRate,
                         framesPerBuffer, streamFlags, NULL, NULL);
}

static PaError pa_start_stream(void *stream) {
    return Pa_StartStream((PaStream*)stream);
}

static PaError pa_abort_stream(void *stream) {
    return Pa_AbortStream((PaStream*)stream);
}

static PaError pa_close_stream(void *stream) {
    return Pa_CloseStream((PaStream*)stream);
}

static PaError pa_read_stream(void *stream, void *buffer, unsigned long frames) {
    return Pa_ReadStream((PaStream*)stream, buffer, frames);
}

static PaError pa_write_stream(void *stream, const void *buffer, unsigned long frames) {
    return Pa_WriteStream((PaStream*)stream, buffer, frames);
}
*/
import "C"

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"
)

var (
	initOnce sync.Once
	initErr  error
)

// ErrNoDevice is returned when the host has no default device of the
// requested direction.
var ErrNoDevice = errors.New("portaudio: no default device")

var errStreamClosed = errors.New("portaudio: stream closed")

// paError converts a PortAudio error code to a Go error.
func paError(code C.PaError) error {
	if code == C.paNoError {
		return nil
	}
	return fmt.Errorf("portaudio: %s", C.GoString(C.Pa_GetErrorText(code)))
}

// Initialize initializes the PortAudio library.
// It is safe to call multiple times.
func Initialize() error {
	initOnce.Do(func() {
		initErr = paError(C.Pa_Initialize())
	})
	return initErr
}

// Terminate terminates the PortAudio library.
func Terminate() error {
	return paError(C.Pa_Terminate())
}

// DeviceInfo contains information about an audio device.
type DeviceInfo struct {
	Index             int     `json:"index" yaml:"index"`
	Name              string  `json:"name" yaml:"name"`
	MaxInputChannels  int     `json:"max_input_channels" yaml:"max_input_channels"`
	MaxOutputChannels int     `json:"max_output_channels" yaml:"max_output_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate" yaml:"default_sample_rate"`
	IsDefaultInput    bool    `json:"default_input,omitempty" yaml:"default_input,omitempty"`
	IsDefaultOutput   bool    `json:"default_output,omitempty" yaml:"default_output,omitempty"`
}

// Devices returns a list of available audio devices.
func Devices() ([]DeviceInfo, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	count := int(C.Pa_GetDeviceCount())
	if count < 0 {
		return nil, paError(C.PaError(count))
	}

	defaultInput := int(C.Pa_GetDefaultInputDevice())
	defaultOutput := int(C.Pa_GetDefaultOutputDevice())

	devices := make([]DeviceInfo, 0, count)
	for i := 0; i < count; i++ {
		info := C.Pa_GetDeviceInfo(C.PaDeviceIndex(i))
		if info == nil {
			continue
		}
		devices = append(devices, DeviceInfo{
			Index:             i,
			Name:              C.GoString(info.name),
			MaxInputChannels:  int(info.maxInputChannels),
			MaxOutputChannels: int(info.maxOutputChannels),
			DefaultSampleRate: float64(info.defaultSampleRate),
			IsDefaultInput:    i == defaultInput,
			IsDefaultOutput:   i == defaultOutput,
		})
	}
	return devices, nil
}

type sampleFormat int

const (
	sampleInt16 sampleFormat = iota
	sampleFloat32
)

func (f sampleFormat) size() int {
	if f == sampleFloat32 {
		return 4
	}
	return 2
}

func (f sampleFormat) pa() C.PaSampleFormat {
	if f == sampleFloat32 {
		return C.paFloat32
	}
	return C.paInt16
}

// stream is a blocking-I/O PortAudio stream in a single direction.
type stream struct {
	mu       sync.Mutex
	pa       unsafe.Pointer
	buffer   unsafe.Pointer
	frames   int
	channels int
	format   sampleFormat
	closed   bool
}

// openStream opens and starts a mono or multi-channel stream on the default
// input (input=true) or output device.
func openStream(input bool, channels int, format sampleFormat, sampleRate float64, framesPerBuffer int) (*stream, error) {
	if err := Initialize(); err != nil {
		return nil, err
	}

	var device C.PaDeviceIndex
	if input {
		device = C.Pa_GetDefaultInputDevice()
	} else {
		device = C.Pa_GetDefaultOutputDevice()
	}
	if device == C.paNoDevice {
		return nil, ErrNoDevice
	}
	info := C.Pa_GetDeviceInfo(device)
	if info == nil {
		return nil, fmt.Errorf("portaudio: no info for device %d", int(device))
	}

	params := &C.PaStreamParameters{
		device:                    device,
		channelCount:              C.int(channels),
		sampleFormat:              format.pa(),
		hostApiSpecificStreamInfo: nil,
	}
	var inputParams, outputParams *C.PaStreamParameters
	if input {
		params.suggestedLatency = info.defaultLowInputLatency
		inputParams = params
	} else {
		params.suggestedLatency = info.defaultLowOutputLatency
		outputParams = params
	}

	var paStream unsafe.Pointer
	err := paError(C.pa_open_stream(
		&paStream,
		inputParams,
		outputParams,
		C.double(sampleRate),
		C.ulong(framesPerBuffer),
		C.paClipOff,
	))
	if err != nil {
		return nil, err
	}
	if err := paError(C.pa_start_stream(paStream)); err != nil {
		C.pa_close_stream(paStream)
		return nil, err
	}

	return &stream{
		pa:       paStream,
		buffer:   C.malloc(C.size_t(framesPerBuffer * channels * format.size())),
		frames:   framesPerBuffer,
		channels: channels,
		format:   format,
	}, nil
}

// readFloat32 blocks until one buffer of frames has been captured.
func (s *stream) readFloat32(dst []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errStreamClosed
	}
	if err := paError(C.pa_read_stream(s.pa, s.buffer, C.ulong(s.frames))); err != nil {
		return 0, err
	}
	src := unsafe.Slice((*float32)(s.buffer), s.frames*s.channels)
	return copy(dst, src), nil
}

// writeInt16 writes one buffer of frames, zero padded, blocking while the
// device queue is full.
func (s *stream) writeInt16(samples []int16) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errStreamClosed
	}
	dst := unsafe.Slice((*int16)(s.buffer), s.frames*s.channels)
	n := copy(dst, samples)
	clear(dst[n:])
	return paError(C.pa_write_stream(s.pa, s.buffer, C.ulong(s.frames)))
}

// close aborts and closes the stream. Safe to call more than once.
func (s *stream) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	C.pa_abort_stream(s.pa)
	err := paError(C.pa_close_stream(s.pa))
	C.free(s.buffer)
	return err
}
