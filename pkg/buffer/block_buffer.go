package buffer

import (
	"fmt"
	"io"
	"sync"
)

// BlockBuffer is a thread-safe fixed-size FIFO queue that blocks producers
// while full and consumers while empty, giving predictable memory usage and
// flow control between the two sides.
type BlockBuffer[T any] struct {
	cond *sync.Cond

	mu         sync.Mutex
	buf        []T
	head, tail int64
	closeWrite bool
	closeErr   error
}

// BlockN creates a new BlockBuffer holding at most size elements. It panics
// if size is not positive.
func BlockN[T any](size int) *BlockBuffer[T] {
	if size <= 0 {
		panic("buffer: block size must be positive")
	}
	bb := &BlockBuffer[T]{
		buf: make([]T, size),
	}
	bb.cond = sync.NewCond(&bb.mu)
	return bb
}

// Add appends an element, blocking while the buffer is full.
//
// Returns an error if the buffer is closed for writing, before or while
// waiting.
func (bb *BlockBuffer[T]) Add(t T) error {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	size := int64(len(bb.buf))
	for {
		if bb.closeErr != nil {
			return fmt.Errorf("buffer: write to closed buffer: %w", bb.closeErr)
		}
		if bb.closeWrite {
			return fmt.Errorf("buffer: write to closed buffer: %w", io.ErrClosedPipe)
		}
		if bb.tail-bb.head < size {
			break
		}
		bb.cond.Wait()
	}
	bb.buf[bb.tail%size] = t
	bb.tail++
	bb.cond.Broadcast()
	return nil
}

// Next removes and returns the oldest element, blocking until one is
// available or the buffer is closed. Returns ErrIteratorDone when the buffer
// is closed for writing and empty.
func (bb *BlockBuffer[T]) Next() (t T, err error) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	for bb.head == bb.tail {
		if bb.closeErr != nil {
			err = fmt.Errorf("buffer: read from closed buffer: %w", bb.closeErr)
			return
		}
		if bb.closeWrite {
			err = ErrIteratorDone
			return
		}
		bb.cond.Wait()
	}
	if bb.closeErr != nil {
		err = fmt.Errorf("buffer: read from closed buffer: %w", bb.closeErr)
		return
	}
	slot := bb.head % int64(len(bb.buf))
	t = bb.buf[slot]
	var zero T
	bb.buf[slot] = zero
	bb.head++
	bb.cond.Broadcast()
	return t, nil
}

// Len returns the number of elements currently in the buffer.
func (bb *BlockBuffer[T]) Len() int {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return int(bb.tail - bb.head)
}

// Cap returns the buffer size.
func (bb *BlockBuffer[T]) Cap() int {
	return len(bb.buf)
}

// Reset discards all buffered elements and wakes blocked producers.
func (bb *BlockBuffer[T]) Reset() {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	clear(bb.buf)
	bb.head = 0
	bb.tail = 0
	bb.cond.Broadcast()
}

// CloseWrite closes the write side. Blocked producers fail; consumers drain
// what is left and then get ErrIteratorDone.
func (bb *BlockBuffer[T]) CloseWrite() error {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if bb.closeWrite {
		return nil
	}
	bb.closeWrite = true
	bb.cond.Broadcast()
	return nil
}

// CloseWithError closes both ends. All blocked calls return err; a nil err
// means io.ErrClosedPipe.
func (bb *BlockBuffer[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if bb.closeErr != nil {
		return nil
	}
	bb.closeErr = err
	bb.closeWrite = true
	bb.cond.Broadcast()
	return nil
}

// Close is equivalent to CloseWithError(io.ErrClosedPipe).
func (bb *BlockBuffer[T]) Close() error {
	return bb.CloseWithError(io.ErrClosedPipe)
}

// Error returns the error the buffer was closed with, if any.
func (bb *BlockBuffer[T]) Error() error {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return bb.closeErr
}
