// Package voice implements a full-duplex real-time voice conversation with a
// Gemini Live style service.
//
// The pipeline has two independent streams:
//
//	microphone → CaptureBridge → FrameQueue → Conn.SendRealtimeInput
//	Conn.Events → Session dispatch → PlaybackScheduler / TranscriptLog
//
// Session owns the lifecycle (Idle, Connecting, Listening, Speaking), the
// single connection and the single microphone stream. PlaybackScheduler
// schedules inbound PCM16 chunks back to back on a pcm.Player clock and
// drops everything on a server interruption. TranscriptLog keeps the most
// recent speech fragments of both speakers.
//
// The transport, the microphone and the output device are interfaces so the
// pipeline runs against fakes in tests; package gemini provides transports,
// package portaudio provides devices and pcm.Renderer provides the player.
//
// Example:
//
//	renderer := pcm.NewRenderer(pcm.L16Mono24K, speaker)
//	go renderer.Run(ctx)
//	s := voice.NewSession(gemini.NewClientFactory(key, ""), &portaudio.Microphone{}, renderer)
//	go func() {
//	    for ev := range s.Events() {
//	        fmt.Println(ev.Kind, ev.Status)
//	    }
//	}()
//	if err := s.Start(ctx); err != nil {
//	    return err
//	}
//	defer s.Close()
package voice
