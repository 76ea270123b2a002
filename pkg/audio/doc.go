// Package audio groups the audio packages of the voice pipeline:
//
//   - pcm: 16-bit PCM formats, the wire codec and the scheduled Renderer
//   - resampler: streaming sample-rate conversion
//   - portaudio: microphone and speaker access through PortAudio (cgo)
//
// A typical playback path decodes a chunk and schedules it on a renderer
// writing to the default output device:
//
//	out, _ := portaudio.NewOutputStream(pcm.L16Mono24K, 20*time.Millisecond)
//	r := pcm.NewRenderer(pcm.L16Mono24K, out)
//	go r.Run(ctx)
//
//	buf, _ := pcm.DecodeFrame(data, 24000, 1)
//	r.Schedule(buf, r.Now(), nil)
package audio
