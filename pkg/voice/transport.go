package voice

import (
	"context"
	"encoding/json"
	"iter"

	"github.com/haivivi/nova/pkg/audio/pcm"
)

// Live model defaults.
const (
	DefaultModel             = "gemini-2.5-flash-native-audio-preview-09-2025"
	DefaultSystemInstruction = "You are Nova, a helpful AI in a real-time conversation. Keep your responses natural and conversational. Avoid very long monologues."

	// InputSampleRate is the rate of outbound microphone audio.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of inbound model audio when the chunk
	// carries no rate parameter.
	OutputSampleRate = 24000
	// FrameSize is the number of samples per captured frame.
	FrameSize = 4096
)

// LiveConfig is sent once when a connection is opened.
type LiveConfig struct {
	Model             string `json:"model" yaml:"model"`
	SystemInstruction string `json:"system_instruction,omitempty" yaml:"system_instruction,omitempty"`
	// Voice selects a prebuilt speech voice. Empty uses the service default.
	Voice string `json:"voice,omitempty" yaml:"voice,omitempty"`
	// InputTranscription enables transcripts of the user's speech.
	InputTranscription bool `json:"input_transcription" yaml:"input_transcription"`
	// OutputTranscription enables transcripts of the model's speech.
	OutputTranscription bool `json:"output_transcription" yaml:"output_transcription"`
}

// DefaultLiveConfig returns the configuration used by Nova's voice mode:
// audio responses with both transcriptions enabled.
func DefaultLiveConfig() LiveConfig {
	return LiveConfig{
		Model:               DefaultModel,
		SystemInstruction:   DefaultSystemInstruction,
		InputTranscription:  true,
		OutputTranscription: true,
	}
}

// Media is one realtime input chunk: base64 data plus its MIME tag.
type Media struct {
	Data     string `json:"data"`
	MIMEType string `json:"mimeType"`
}

// ServerMessage is one inbound message. Any subset of fields may be set.
type ServerMessage struct {
	SetupComplete *struct{}       `json:"setupComplete,omitempty"`
	ServerContent *ServerContent  `json:"serverContent,omitempty"`
	GoAway        *GoAway         `json:"goAway,omitempty"`
	UsageMetadata json.RawMessage `json:"usageMetadata,omitempty"`
}

// ServerContent carries model output and control flags.
type ServerContent struct {
	ModelTurn           *Turn          `json:"modelTurn,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	InputTranscription  *Transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *Transcription `json:"outputTranscription,omitempty"`
}

// Turn is a model turn.
type Turn struct {
	Parts []Part `json:"parts,omitempty"`
}

// Part is one piece of a model turn.
type Part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *InlineData `json:"inlineData,omitempty"`
}

// InlineData is base64 encoded binary content.
type InlineData struct {
	MIMEType string `json:"mimeType,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Transcription is a fragment of recognized speech.
type Transcription struct {
	Text string `json:"text,omitempty"`
}

// GoAway announces that the server will close the connection soon.
type GoAway struct {
	TimeLeft string `json:"timeLeft,omitempty"`
}

// Conn is an open live connection.
type Conn interface {
	// SendRealtimeInput sends one media chunk. Safe for concurrent use.
	SendRealtimeInput(Media) error

	// Events yields inbound messages in arrival order. The sequence ends
	// after yielding an error or when the connection closes cleanly.
	Events() iter.Seq2[*ServerMessage, error]

	// Close closes the connection. Safe to call more than once.
	Close() error
}

// Client opens live connections.
type Client interface {
	Connect(ctx context.Context, cfg *LiveConfig) (Conn, error)
}

// ClientFactory returns a credentialed client. It fails with a
// CodeMissingCredential error when no credential is configured.
type ClientFactory func() (Client, error)

// CaptureStream is a live microphone stream.
type CaptureStream = pcm.Capture

// Microphone acquires capture streams. Acquire fails when access is denied
// or no input device exists.
type Microphone interface {
	Acquire(ctx context.Context) (CaptureStream, error)
}

// MicrophoneFunc adapts a function to Microphone.
type MicrophoneFunc func(ctx context.Context) (CaptureStream, error)

// Acquire implements Microphone.
func (f MicrophoneFunc) Acquire(ctx context.Context) (CaptureStream, error) {
	return f(ctx)
}
