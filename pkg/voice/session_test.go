package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = time.Second
	tick    = 5 * time.Millisecond
)

type harness struct {
	player  *fakePlayer
	mic     *fakeMic
	client  *fakeClient
	session *Session
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		player: &fakePlayer{},
		mic:    &fakeMic{},
		client: &fakeClient{},
	}
	h.session = NewSession(h.client.factory(), h.mic, h.player, opts...)
	t.Cleanup(func() { h.session.Close() })
	return h
}

// start brings the session to Listening and returns its connection.
func (h *harness) start(t *testing.T) *fakeConn {
	t.Helper()
	require.NoError(t, h.session.Start(context.Background()))
	require.Equal(t, StatusListening, h.session.Status())
	conn := h.client.last()
	require.NotNil(t, conn)
	return conn
}

func (h *harness) waitStatus(t *testing.T, want Status) {
	t.Helper()
	require.Eventually(t, func() bool { return h.session.Status() == want }, waitFor, tick,
		"status stayed %v, want %v", h.session.Status(), want)
}

// sync pushes a transcript marker and waits until it was dispatched, so
// every message pushed before it has been handled.
func (h *harness) sync(t *testing.T, conn *fakeConn, marker string) {
	t.Helper()
	conn.push(&ServerMessage{ServerContent: &ServerContent{
		OutputTranscription: &Transcription{Text: marker},
	}})
	require.Eventually(t, func() bool {
		for _, e := range h.session.Transcript() {
			if e.Text == marker {
				return true
			}
		}
		return false
	}, waitFor, tick)
}

func TestSession_StopWhenIdle(t *testing.T) {
	h := newHarness(t)
	h.session.Stop()
	assert.Equal(t, StatusIdle, h.session.Status())
	assert.Nil(t, h.session.Err())
	assert.Nil(t, h.mic.last())
}

func TestSession_StartListening(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)
	stream := h.mic.last()

	assert.ErrorIs(t, h.session.Start(context.Background()), ErrSessionActive)

	stream.feed(FrameSize, 0.5)
	require.Eventually(t, func() bool { return len(conn.sentMedia()) == 1 }, waitFor, tick)
	m := conn.sentMedia()[0]
	assert.Equal(t, "audio/pcm;rate=16000", m.MIMEType)
	assert.NotEmpty(t, m.Data)

	h.session.Stop()
	assert.Equal(t, StatusIdle, h.session.Status())
	assert.True(t, stream.isClosed(), "microphone not released")
	assert.True(t, conn.isClosed(), "connection not closed")
	assert.Nil(t, h.session.Err())
}

func TestSession_AudioSpeakingAndDrain(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)

	conn.push(audioMessage(2400))
	h.waitStatus(t, StatusSpeaking)
	require.Equal(t, 1, h.player.count())

	conn.push(audioMessage(2400))
	require.Eventually(t, func() bool { return h.player.count() == 2 }, waitFor, tick)
	pbs := h.player.all()
	assert.Equal(t, 0.0, pbs[0].at)
	assert.InDelta(t, 0.1, pbs[1].at, 1e-9)

	pbs[0].finish()
	assert.Equal(t, StatusSpeaking, h.session.Status())
	pbs[1].finish()
	assert.Equal(t, StatusListening, h.session.Status())
}

func TestSession_InterruptWhileListening(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)

	conn.push(&ServerMessage{ServerContent: &ServerContent{Interrupted: true}})
	h.sync(t, conn, "marker")
	assert.Equal(t, StatusListening, h.session.Status())
}

func TestSession_InterruptWhileSpeaking(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)

	conn.push(audioMessage(24000))
	conn.push(audioMessage(24000))
	require.Eventually(t, func() bool { return h.player.count() == 2 }, waitFor, tick)
	h.waitStatus(t, StatusSpeaking)

	conn.push(&ServerMessage{ServerContent: &ServerContent{Interrupted: true}})
	h.waitStatus(t, StatusListening)
	for i, pb := range h.player.all() {
		assert.True(t, pb.stopped.Load(), "playback %d still playing", i)
	}

	// The next chunk starts at the device clock, not after the cut audio.
	h.player.setNow(0.3)
	conn.push(audioMessage(2400))
	require.Eventually(t, func() bool { return h.player.count() == 3 }, waitFor, tick)
	assert.Equal(t, 0.3, h.player.all()[2].at)
	h.waitStatus(t, StatusSpeaking)
}

func TestSession_DispatchOrder(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)

	// Audio is scheduled before the interruption in the same message is
	// applied, then both transcripts are appended.
	msg := audioMessage(2400)
	msg.ServerContent.Interrupted = true
	msg.ServerContent.InputTranscription = &Transcription{Text: "stop"}
	msg.ServerContent.OutputTranscription = &Transcription{Text: "okay"}
	conn.push(msg)

	require.Eventually(t, func() bool { return len(h.session.Transcript()) == 2 }, waitFor, tick)
	require.Equal(t, 1, h.player.count())
	assert.True(t, h.player.all()[0].stopped.Load())
	assert.Equal(t, StatusListening, h.session.Status())
	assert.Equal(t, []TranscriptEntry{
		{Speaker: SpeakerUser, Text: "stop"},
		{Speaker: SpeakerModel, Text: "okay"},
	}, h.session.Transcript())
}

func TestSession_MalformedChunk(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)

	conn.push(&ServerMessage{ServerContent: &ServerContent{ModelTurn: &Turn{Parts: []Part{
		{InlineData: &InlineData{MIMEType: "audio/pcm;rate=24000", Data: "AAAA"}}, // 3 bytes
	}}}})
	conn.push(&ServerMessage{ServerContent: &ServerContent{ModelTurn: &Turn{Parts: []Part{
		{InlineData: &InlineData{MIMEType: "audio/pcm;rate=24000", Data: "not base64!"}},
	}}}})
	h.sync(t, conn, "after bad chunks")

	assert.Equal(t, StatusListening, h.session.Status())
	assert.False(t, conn.isClosed())
	assert.Equal(t, 0, h.player.count())
	assert.Nil(t, h.session.Err())

	conn.push(audioMessage(480))
	h.waitStatus(t, StatusSpeaking)
}

func TestSession_StopWhileConnecting(t *testing.T) {
	h := newHarness(t)
	h.client.gate = make(chan struct{})
	h.client.connecting = make(chan struct{})

	errCh := make(chan error, 1)
	go func() { errCh <- h.session.Start(context.Background()) }()

	<-h.client.connecting
	assert.Equal(t, StatusConnecting, h.session.Status())
	h.session.Stop()
	assert.Equal(t, StatusIdle, h.session.Status())

	// The connection resolves after the stop and must be discarded.
	close(h.client.gate)
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(waitFor):
		t.Fatal("Start did not return")
	}

	assert.Equal(t, StatusIdle, h.session.Status())
	assert.True(t, h.mic.last().isClosed(), "microphone retained")
	assert.True(t, h.client.last().isClosed(), "late connection retained")
	assert.Nil(t, h.session.Err())

	// The session can start again afterwards.
	h.client.gate = nil
	h.client.connecting = nil
	h.start(t)
}

func TestSession_StopWhileConnectingReleasesMicrophone(t *testing.T) {
	h := newHarness(t)
	h.client.gate = make(chan struct{})
	h.client.connecting = make(chan struct{})

	errCh := make(chan error, 1)
	go func() { errCh <- h.session.Start(context.Background()) }()

	<-h.client.connecting
	h.session.Stop()
	assert.Equal(t, StatusIdle, h.session.Status())
	assert.True(t, h.mic.last().isClosed(), "idle session still holds the microphone")

	// The stopped attempt is still waiting on its connection.
	assert.ErrorIs(t, h.session.Start(context.Background()), ErrSessionActive)
	assert.Equal(t, 1, h.mic.count(), "second microphone stream opened")

	close(h.client.gate)
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrStopped)
	case <-time.After(waitFor):
		t.Fatal("Start did not return")
	}
	assert.True(t, h.client.last().isClosed(), "late connection retained")
	assert.Equal(t, int32(1), h.mic.last().closes.Load())
}

func TestSession_MicrophoneEnds(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)

	h.mic.last().Close()
	h.waitStatus(t, StatusIdle)

	e := h.session.Err()
	require.NotNil(t, e)
	assert.True(t, IsPermission(e))
	assert.ErrorIs(t, e, ErrCaptureEnded)
	assert.True(t, conn.isClosed(), "connection kept after the microphone ended")
}

func TestSession_SchedulingDoesNotBlockSession(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)

	scheduling, release := h.player.hold()
	conn.push(audioMessage(2400))
	select {
	case <-scheduling:
	case <-time.After(waitFor):
		t.Fatal("audio was not scheduled")
	}

	status := make(chan Status, 1)
	go func() { status <- h.session.Status() }()
	select {
	case st := <-status:
		assert.Equal(t, StatusListening, st)
	case <-time.After(waitFor):
		t.Fatal("Status blocked while audio was being scheduled")
	}

	stopped := make(chan struct{})
	go func() {
		h.session.Stop()
		close(stopped)
	}()
	h.waitStatus(t, StatusIdle)

	release()
	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("Stop did not return")
	}

	// The chunk scheduled across the stop does not keep playing.
	require.Eventually(t, func() bool {
		pbs := h.player.all()
		return len(pbs) == 1 && pbs[0].stopped.Load()
	}, waitFor, tick)
	assert.Equal(t, StatusIdle, h.session.Status())
}

func TestSession_StartFailures(t *testing.T) {
	t.Run("missing credential", func(t *testing.T) {
		h := newHarness(t)
		h.session.clients = func() (Client, error) {
			return nil, NewError(CodeMissingCredential, "API Key not found", nil)
		}
		err := h.session.Start(context.Background())
		require.Error(t, err)
		assert.True(t, IsMissingCredential(err))
		assert.Equal(t, StatusIdle, h.session.Status())
		assert.Nil(t, h.mic.last(), "microphone acquired without a credential")
	})

	t.Run("microphone denied", func(t *testing.T) {
		h := newHarness(t)
		h.mic.err = errors.New("permission denied")
		err := h.session.Start(context.Background())
		require.Error(t, err)
		assert.True(t, IsPermission(err))
		require.NotNil(t, h.session.Err())
		assert.Equal(t, MessageStartFailed, h.session.Err().Message)
		assert.Equal(t, StatusIdle, h.session.Status())
	})

	t.Run("connection refused", func(t *testing.T) {
		h := newHarness(t)
		h.client.err = errors.New("dial tcp: connection refused")
		err := h.session.Start(context.Background())
		require.Error(t, err)
		assert.True(t, IsConnection(err))
		assert.Equal(t, MessageStartFailed, h.session.Err().Message)
		assert.True(t, h.mic.last().isClosed(), "microphone retained after failed connect")
		assert.Equal(t, StatusIdle, h.session.Status())
	})
}

func TestSession_RestartClearsErrorAndTranscript(t *testing.T) {
	h := newHarness(t)
	h.mic.err = errors.New("busy")
	require.Error(t, h.session.Start(context.Background()))
	require.NotNil(t, h.session.Err())

	h.mic.err = nil
	conn := h.start(t)
	assert.Nil(t, h.session.Err())
	h.sync(t, conn, "hello")
	h.session.Stop()
	require.Len(t, h.session.Transcript(), 1)

	h.start(t)
	assert.Empty(t, h.session.Transcript())
}

func TestSession_TransportError(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)
	conn.push(audioMessage(2400))
	h.waitStatus(t, StatusSpeaking)

	conn.fail(errors.New("websocket: close 1011"))
	h.waitStatus(t, StatusIdle)

	e := h.session.Err()
	require.NotNil(t, e)
	assert.Equal(t, CodeConnection, e.Code)
	assert.Equal(t, MessageConnectionLost, e.Message)
	assert.True(t, h.mic.last().isClosed())
	assert.True(t, conn.isClosed())
	assert.True(t, h.player.all()[0].stopped.Load(), "playback not cleared")
}

func TestSession_TransportClose(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)
	conn.hangUp()
	h.waitStatus(t, StatusIdle)
	assert.Nil(t, h.session.Err())
	assert.True(t, h.mic.last().isClosed())
}

func TestSession_SendFailureEndsSession(t *testing.T) {
	h := newHarness(t)
	conn := h.start(t)
	conn.mu.Lock()
	conn.sendErr = errors.New("broken pipe")
	conn.mu.Unlock()

	h.mic.last().feed(FrameSize, 0.1)
	h.waitStatus(t, StatusIdle)
	require.NotNil(t, h.session.Err())
	assert.Equal(t, CodeConnection, h.session.Err().Code)
}

func TestSession_StopIsIdempotent(t *testing.T) {
	h := newHarness(t)
	h.start(t)
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.session.Stop()
		}()
	}
	wg.Wait()
	assert.Equal(t, StatusIdle, h.session.Status())
	assert.True(t, h.mic.last().isClosed())
}

func TestSession_Events(t *testing.T) {
	h := newHarness(t)

	var (
		mu     sync.Mutex
		events []Event
	)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range h.session.Events() {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		}
	}()

	conn := h.start(t)
	conn.push(audioMessage(480))
	h.waitStatus(t, StatusSpeaking)
	h.sync(t, conn, "hi")
	h.session.Close()
	<-done

	mu.Lock()
	defer mu.Unlock()
	var statuses []Status
	var texts []string
	for _, ev := range events {
		switch ev.Kind {
		case EventStatus:
			statuses = append(statuses, ev.Status)
		case EventTranscript:
			texts = append(texts, ev.Entry.Text)
		}
	}
	assert.Equal(t, []Status{StatusConnecting, StatusListening, StatusSpeaking, StatusIdle}, statuses)
	assert.Equal(t, []string{"hi"}, texts)
}

func TestSession_LiveConfig(t *testing.T) {
	var got *LiveConfig
	client := &recordingClient{fakeClient: &fakeClient{}, cfg: &got}
	s := NewSession(func() (Client, error) { return client, nil }, &fakeMic{}, &fakePlayer{},
		WithLiveConfig(LiveConfig{Model: "m", SystemInstruction: "be brief", InputTranscription: true}))
	defer s.Close()

	require.NoError(t, s.Start(context.Background()))
	require.NotNil(t, got)
	assert.Equal(t, "m", got.Model)
	assert.Equal(t, "be brief", got.SystemInstruction)
	assert.True(t, got.InputTranscription)
	assert.False(t, got.OutputTranscription)
}

type recordingClient struct {
	*fakeClient
	cfg **LiveConfig
}

func (c *recordingClient) Connect(ctx context.Context, cfg *LiveConfig) (Conn, error) {
	*c.cfg = cfg
	return c.fakeClient.Connect(ctx, cfg)
}

func TestSession_Metrics(t *testing.T) {
	m := NewMetrics("test")
	h := newHarness(t, WithMetrics(m))
	conn := h.start(t)
	conn.push(audioMessage(480))
	conn.push(&ServerMessage{ServerContent: &ServerContent{ModelTurn: &Turn{Parts: []Part{
		{InlineData: &InlineData{Data: "AAAA"}},
	}}}})
	h.sync(t, conn, "done")
	h.session.Stop()

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[f.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["test_voice_chunks_played_total"])
	assert.Equal(t, 1.0, values["test_voice_chunks_malformed_total"])
	assert.Equal(t, 2.0, values["test_voice_sessions_total"]) // started + stopped
}
