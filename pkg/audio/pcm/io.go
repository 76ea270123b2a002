package pcm

import (
	"io"
)

// Writer is a writer for chunks of audio data.
type Writer interface {
	Write(Chunk) error
}

var _ Writer = WriteFunc(nil)

// WriteFunc is a function that implements the Writer interface.
type WriteFunc func(Chunk) error

// Write implements the Writer interface.
func (f WriteFunc) Write(c Chunk) error {
	return f(c)
}

// Capture is a live input stream of mono float samples in [-1, 1].
type Capture interface {
	// Read blocks until samples are available and copies them into p.
	Read(p []float32) (int, error)
	// SampleRate returns the capture rate in Hz.
	SampleRate() int
	// Close releases the device. It must be safe to call more than once.
	Close() error
}

// Discard is a Writer that discards all written chunks.
var Discard Writer = discard{}

type discard struct{}

func (discard) Write(Chunk) error {
	return nil
}

// ChunkWriter wraps an io.Writer to provide a pcm.Writer interface, e.g. to
// dump rendered output to a raw .pcm file.
func ChunkWriter(w io.Writer) Writer {
	return &chunkWriter{w: w}
}

type chunkWriter struct {
	w io.Writer
}

func (w *chunkWriter) Write(c Chunk) error {
	_, err := c.WriteTo(w.w)
	return err
}

// Tee returns a Writer that writes every chunk to all of ws, stopping at the
// first error.
func Tee(ws ...Writer) Writer {
	return WriteFunc(func(c Chunk) error {
		for _, w := range ws {
			if err := w.Write(c); err != nil {
				return err
			}
		}
		return nil
	})
}
