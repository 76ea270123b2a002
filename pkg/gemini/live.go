package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/haivivi/nova/pkg/voice"
)

// ErrClosed is returned when sending on a closed live session.
var ErrClosed = errors.New("gemini: live session closed")

// LiveSession is a BidiGenerateContent websocket connection.
type LiveSession struct {
	conn      *websocket.Conn
	sessionID string
	model     string
	closeCh   chan struct{}
	eventsCh  chan eventOrError
	closeOnce sync.Once
	mu        sync.Mutex
}

type eventOrError struct {
	msg *voice.ServerMessage
	err error
}

// Wire messages for the setup and realtime input frames.
type (
	setupMessage struct {
		Setup liveSetup `json:"setup"`
	}

	liveSetup struct {
		Model                    string           `json:"model"`
		GenerationConfig         generationConfig `json:"generationConfig"`
		SystemInstruction        *systemContent   `json:"systemInstruction,omitempty"`
		InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
		OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
	}

	generationConfig struct {
		ResponseModalities []string      `json:"responseModalities"`
		SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
	}

	speechConfig struct {
		VoiceConfig struct {
			PrebuiltVoiceConfig struct {
				VoiceName string `json:"voiceName"`
			} `json:"prebuiltVoiceConfig"`
		} `json:"voiceConfig"`
	}

	systemContent struct {
		Parts []textPart `json:"parts"`
	}

	textPart struct {
		Text string `json:"text"`
	}

	realtimeInputMessage struct {
		RealtimeInput realtimeInput `json:"realtimeInput"`
	}

	realtimeInput struct {
		MediaChunks []voice.Media `json:"mediaChunks"`
	}
)

// modelName prefixes bare model ids with "models/".
func modelName(model string) string {
	if strings.HasPrefix(model, "models/") || strings.HasPrefix(model, "tunedModels/") {
		return model
	}
	return "models/" + model
}

func newSetup(cfg *voice.LiveConfig) *setupMessage {
	model := cfg.Model
	if model == "" {
		model = voice.DefaultModel
	}
	s := liveSetup{
		Model: modelName(model),
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if cfg.Voice != "" {
		sc := &speechConfig{}
		sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName = cfg.Voice
		s.GenerationConfig.SpeechConfig = sc
	}
	if cfg.SystemInstruction != "" {
		s.SystemInstruction = &systemContent{Parts: []textPart{{Text: cfg.SystemInstruction}}}
	}
	if cfg.InputTranscription {
		s.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscription {
		s.OutputAudioTranscription = &struct{}{}
	}
	return &setupMessage{Setup: s}
}

// connectWebSocket dials the live endpoint and sends the setup message.
func (c *Client) connectWebSocket(ctx context.Context, cfg *voice.LiveConfig) (*LiveSession, error) {
	u, err := c.liveURL()
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("x-goog-api-key", c.apiKey)

	conn, resp, err := c.dialer.DialContext(ctx, u, headers)
	if err != nil {
		if resp != nil {
			return nil, &Error{
				Op:      "live",
				Code:    resp.StatusCode,
				Status:  resp.Status,
				Message: fmt.Sprintf("failed to connect: %v", err),
			}
		}
		return nil, fmt.Errorf("gemini: live: failed to connect: %w", err)
	}

	setup := newSetup(cfg)
	s := &LiveSession{
		conn:      conn,
		sessionID: uuid.NewString(),
		model:     setup.Setup.Model,
		closeCh:   make(chan struct{}),
		eventsCh:  make(chan eventOrError, 100),
	}
	if err := s.send(setup); err != nil {
		s.Close()
		return nil, classify("live", err)
	}

	slog.Debug("gemini: live session opened", "session", s.sessionID, "model", s.model)
	go s.readLoop()
	return s, nil
}

// SessionID returns the local identifier of this connection, used in logs.
func (s *LiveSession) SessionID() string {
	return s.sessionID
}

// SendRealtimeInput sends one media chunk.
func (s *LiveSession) SendRealtimeInput(m voice.Media) error {
	select {
	case <-s.closeCh:
		return ErrClosed
	default:
	}
	err := s.send(&realtimeInputMessage{
		RealtimeInput: realtimeInput{MediaChunks: []voice.Media{m}},
	})
	if err != nil {
		return classify("live", err)
	}
	return nil
}

// Events returns an iterator over server messages.
func (s *LiveSession) Events() iter.Seq2[*voice.ServerMessage, error] {
	return func(yield func(*voice.ServerMessage, error) bool) {
		for {
			select {
			case <-s.closeCh:
				return
			case item, ok := <-s.eventsCh:
				if !ok {
					return
				}
				if !yield(item.msg, item.err) {
					return
				}
				if item.err != nil {
					return
				}
			}
		}
	}
}

// Close closes the session.
func (s *LiveSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		err = s.conn.Close()
		slog.Debug("gemini: live session closed", "session", s.sessionID)
	})
	return err
}

// send writes a JSON frame to the server.
func (s *LiveSession) send(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		if b, err := json.Marshal(v); err == nil {
			str := string(b)
			if len(str) > 500 {
				str = str[:500] + "..."
			}
			slog.Debug("gemini: sending message", "session", s.sessionID, "content", str)
		}
	}

	return s.conn.WriteJSON(v)
}

// readLoop reads server messages until the connection fails or closes.
func (s *LiveSession) readLoop() {
	defer close(s.eventsCh)

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return
			}
			select {
			case <-s.closeCh:
			case s.eventsCh <- eventOrError{err: classify("live", err)}:
			}
			return
		}

		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			str := string(message)
			if len(str) > 1000 {
				str = str[:1000] + "..."
			}
			slog.Debug("gemini: received message", "session", s.sessionID, "len", len(message), "content", str)
		}

		var msg voice.ServerMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			slog.Warn("gemini: skipping unparsable message", "session", s.sessionID, "error", err)
			continue
		}

		select {
		case <-s.closeCh:
			return
		case s.eventsCh <- eventOrError{msg: &msg}:
		}
	}
}

var _ voice.Conn = (*LiveSession)(nil)
