//go:build !cgo || noportaudio

package commands

import (
	"errors"
	"io"

	"github.com/haivivi/nova/pkg/audio/pcm"
	"github.com/haivivi/nova/pkg/voice"
)

var errNoAudio = errors.New("audio devices need a cgo build with PortAudio")

type audioDevices struct {
	mic voice.Microphone
	out pcm.Writer
	io.Closer
}

func openAudio(int, pcm.Format) (*audioDevices, error) {
	return nil, errNoAudio
}

func listDevices() (any, error) {
	return nil, errNoAudio
}
