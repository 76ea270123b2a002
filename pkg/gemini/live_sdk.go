package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"google.golang.org/genai"

	"github.com/haivivi/nova/pkg/voice"
)

// SDKSession is a live connection opened through the genai SDK.
type SDKSession struct {
	session   *genai.Session
	sessionID string
	closeCh   chan struct{}
	eventsCh  chan eventOrError
	closeOnce sync.Once
	mu        sync.Mutex
}

func liveConnectConfig(cfg *voice.LiveConfig) *genai.LiveConnectConfig {
	lc := &genai.LiveConnectConfig{
		ResponseModalities: []genai.Modality{genai.ModalityAudio},
	}
	if cfg.SystemInstruction != "" {
		lc.SystemInstruction = genai.NewContentFromText(cfg.SystemInstruction, genai.RoleUser)
	}
	if cfg.Voice != "" {
		lc.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: cfg.Voice},
			},
		}
	}
	if cfg.InputTranscription {
		lc.InputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	if cfg.OutputTranscription {
		lc.OutputAudioTranscription = &genai.AudioTranscriptionConfig{}
	}
	return lc
}

func (c *Client) connectSDK(ctx context.Context, cfg *voice.LiveConfig) (*SDKSession, error) {
	gc, err := c.GenAI(ctx)
	if err != nil {
		return nil, err
	}
	model := cfg.Model
	if model == "" {
		model = voice.DefaultModel
	}
	session, err := gc.Live.Connect(ctx, model, liveConnectConfig(cfg))
	if err != nil {
		return nil, classify("live", err)
	}
	s := &SDKSession{
		session:   session,
		sessionID: uuid.NewString(),
		closeCh:   make(chan struct{}),
		eventsCh:  make(chan eventOrError, 100),
	}
	slog.Debug("gemini: sdk live session opened", "session", s.sessionID, "model", model)
	go s.readLoop()
	return s, nil
}

// SessionID returns the local identifier of this connection, used in logs.
func (s *SDKSession) SessionID() string {
	return s.sessionID
}

// SendRealtimeInput sends one media chunk.
func (s *SDKSession) SendRealtimeInput(m voice.Media) error {
	select {
	case <-s.closeCh:
		return ErrClosed
	default:
	}
	data, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return fmt.Errorf("gemini: live: decode media: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.session.SendRealtimeInput(genai.LiveRealtimeInput{
		Media: &genai.Blob{Data: data, MIMEType: m.MIMEType},
	})
	if err != nil {
		return classify("live", err)
	}
	return nil
}

// Events returns an iterator over server messages.
func (s *SDKSession) Events() iter.Seq2[*voice.ServerMessage, error] {
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
func (s *SDKSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closeCh)
		err = s.session.Close()
	})
	return err
}

func (s *SDKSession) readLoop() {
	defer close(s.eventsCh)

	for {
		msg, err := s.session.Receive()
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
		select {
		case <-s.closeCh:
			return
		case s.eventsCh <- eventOrError{msg: fromSDKMessage(msg)}:
		}
	}
}

// fromSDKMessage maps an SDK message onto the wire shape the voice session
// consumes. Inline audio is re-encoded as base64.
func fromSDKMessage(m *genai.LiveServerMessage) *voice.ServerMessage {
	out := &voice.ServerMessage{}
	if m.SetupComplete != nil {
		out.SetupComplete = &struct{}{}
	}
	if m.GoAway != nil {
		out.GoAway = &voice.GoAway{TimeLeft: m.GoAway.TimeLeft.String()}
	}
	if m.UsageMetadata != nil {
		if b, err := json.Marshal(m.UsageMetadata); err == nil {
			out.UsageMetadata = b
		}
	}
	sc := m.ServerContent
	if sc == nil {
		return out
	}
	content := &voice.ServerContent{
		Interrupted:  sc.Interrupted,
		TurnComplete: sc.TurnComplete,
	}
	if sc.ModelTurn != nil {
		turn := &voice.Turn{}
		for _, p := range sc.ModelTurn.Parts {
			if p == nil {
				continue
			}
			part := voice.Part{Text: p.Text}
			if p.InlineData != nil {
				part.InlineData = &voice.InlineData{
					MIMEType: p.InlineData.MIMEType,
					Data:     base64.StdEncoding.EncodeToString(p.InlineData.Data),
				}
			}
			turn.Parts = append(turn.Parts, part)
		}
		content.ModelTurn = turn
	}
	if sc.InputTranscription != nil {
		content.InputTranscription = &voice.Transcription{Text: sc.InputTranscription.Text}
	}
	if sc.OutputTranscription != nil {
		content.OutputTranscription = &voice.Transcription{Text: sc.OutputTranscription.Text}
	}
	out.ServerContent = content
	return out
}

var _ voice.Conn = (*SDKSession)(nil)
