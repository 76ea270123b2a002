package buffer

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrIteratorDone is returned by Next when a queue is closed for writing and
// has been drained.
var ErrIteratorDone = errors.New("iterator done")

// Queue is the contract shared by Buffer, RingBuffer and BlockBuffer.
type Queue[T any] interface {
	// Add appends an element. What happens when the queue is full depends
	// on the implementation.
	Add(T) error
	// Next removes and returns the oldest element, blocking while empty.
	Next() (T, error)
	// Len returns the number of queued elements.
	Len() int
	// Reset discards all queued elements.
	Reset()
	// CloseWrite stops new writes; Next drains the rest then returns
	// ErrIteratorDone.
	CloseWrite() error
	// CloseWithError closes both ends immediately.
	CloseWithError(error) error
}

var (
	_ Queue[int] = (*Buffer[int])(nil)
	_ Queue[int] = (*RingBuffer[int])(nil)
	_ Queue[int] = (*BlockBuffer[int])(nil)
)

// Buffer is a thread-safe growable FIFO queue. Add never blocks and never
// drops; the backing slice grows to hold whatever the consumer has not taken
// yet.
//
// Readers blocked in Next are woken through a one-slot notification channel
// that every Add signals without blocking. When the buffer is closed for
// writing, Next drains the remaining elements and then returns
// ErrIteratorDone.
type Buffer[T any] struct {
	writeNotify chan struct{}

	mu         sync.Mutex
	closeWrite bool
	closeErr   error
	buf        []T
}

// N creates a new Buffer with the specified initial capacity. The capacity
// is a hint; the buffer grows beyond it as needed.
func N[T any](n int) *Buffer[T] {
	return &Buffer[T]{
		writeNotify: make(chan struct{}, 1),
		buf:         make([]T, 0, n),
	}
}

// Add appends an element and wakes a waiting reader.
//
// Returns an error if the buffer is closed for writing or has been closed
// with an error.
func (b *Buffer[T]) Add(t T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		return fmt.Errorf("buffer: write to closed buffer: %w", b.closeErr)
	}
	if b.closeWrite {
		return fmt.Errorf("buffer: write to closed buffer: %w", io.ErrClosedPipe)
	}
	b.buf = append(b.buf, t)
	select {
	case b.writeNotify <- struct{}{}:
	default:
	}
	return nil
}

// Next removes and returns the oldest element, blocking until one is
// available or the buffer is closed.
//
// Returns ErrIteratorDone once the buffer is closed for writing and empty.
func (b *Buffer[T]) Next() (t T, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		err = fmt.Errorf("buffer: read from closed buffer: %w", b.closeErr)
		return
	}
	for len(b.buf) == 0 {
		if b.closeWrite {
			err = ErrIteratorDone
			return
		}
		b.mu.Unlock()
		<-b.writeNotify
		b.mu.Lock()
		if b.closeErr != nil {
			err = fmt.Errorf("buffer: read from closed buffer: %w", b.closeErr)
			return
		}
	}
	t = b.buf[0]
	var zero T
	b.buf[0] = zero
	b.buf = b.buf[1:]
	return t, nil
}

// Len returns the number of elements currently in the buffer.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

// Reset discards all buffered elements. It does not reopen a closed buffer.
func (b *Buffer[T]) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.buf)
	b.buf = b.buf[:0]
}

// Snapshot returns a copy of the buffered elements, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]T, len(b.buf))
	copy(out, b.buf)
	return out
}

// CloseWrite closes the write side of the buffer. Buffered elements can
// still be read; after that Next returns ErrIteratorDone.
//
// Returns nil if the write side was already closed.
func (b *Buffer[T]) CloseWrite() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeWrite {
		return nil
	}
	b.closeWrite = true
	close(b.writeNotify)
	return nil
}

// CloseWithError closes both ends of the buffer and discards its contents.
// Pending and future calls return err; a nil err means io.ErrClosedPipe.
func (b *Buffer[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closeErr != nil {
		return nil
	}
	b.closeErr = err
	b.buf = nil
	if !b.closeWrite {
		b.closeWrite = true
		close(b.writeNotify)
	}
	return nil
}

// Close is equivalent to CloseWithError(io.ErrClosedPipe).
func (b *Buffer[T]) Close() error {
	return b.CloseWithError(io.ErrClosedPipe)
}

// Error returns the error the buffer was closed with, if any.
func (b *Buffer[T]) Error() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeErr
}
