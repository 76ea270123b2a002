// Package resampler converts mono float PCM between sample rates using the
// pure Go go-audio-resampling library.
//
// Two shapes are provided:
//   - Converter: a stateful streaming converter, e.g. microphone at 48kHz to
//     the 16kHz wire rate
//   - Resample: a one-shot conversion of a self-contained clip with a
//     deterministic output length, e.g. a 24kHz reply chunk for a 48kHz device
//
// Example usage:
//
//	conv, err := resampler.New(48000, 16000)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	out, err := conv.Process(frame)
package resampler
