//go:build cgo && !noportaudio

package commands

import (
	"errors"
	"time"

	"github.com/haivivi/nova/pkg/audio/pcm"
	"github.com/haivivi/nova/pkg/audio/portaudio"
	"github.com/haivivi/nova/pkg/voice"
)

// audioDevices is the microphone and speaker of a voice session.
type audioDevices struct {
	mic voice.Microphone
	out *portaudio.OutputStream
}

func (d *audioDevices) Close() error {
	return errors.Join(d.out.Close(), portaudio.Terminate())
}

func openAudio(inputRate int, output pcm.Format) (*audioDevices, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, err
	}
	out, err := portaudio.NewOutputStream(output, 20*time.Millisecond)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, err
	}
	return &audioDevices{
		mic: &portaudio.Microphone{SampleRate: inputRate, FramesPerBuffer: voice.FrameSize},
		out: out,
	}, nil
}

func listDevices() (any, error) {
	defer portaudio.Terminate()
	return portaudio.Devices()
}
