// Package pcm provides types and utilities for working with PCM (Pulse Code
// Modulation) audio data.
//
// The package defines mono 16-bit formats at the rates the voice pipeline
// uses, the float/PCM16/base64 codec used on the Gemini Live wire, and a
// Renderer that plays scheduled buffers on an output clock.
//
// Key types:
//   - Format: audio format (sample rate, channels, bit depth)
//   - Buffer: decoded float audio, one slice per channel
//   - Chunk, DataChunk: encoded PCM16 data with its format
//   - Writer: sink for chunks (a speaker, a file, a test recorder)
//   - Player, Playback: the scheduling contract, implemented by Renderer
//
// Example usage:
//
//	// Capture side: float samples to base64 PCM16
//	text := pcm.EncodeText(pcm.EncodeFrame(samples))
//
//	// Playback side: base64 PCM16 @ 24kHz to a scheduled buffer
//	raw, err := pcm.DecodeText(text)
//	buf, err := pcm.DecodeFrame(raw, 24000, 1)
//	r := pcm.NewRenderer(pcm.L16Mono24K, speaker)
//	go r.Run(ctx)
//	r.Schedule(buf, r.Now(), func() { log.Println("done") })
package pcm
