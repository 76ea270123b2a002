// Package buffer provides thread-safe element queues for streaming pipelines.
//
// The package offers three queue types that share the Queue interface and
// differ only in what happens when a producer outruns its consumer:
//
//   - Buffer: grows without bound. Nothing is lost, memory is not capped.
//
//   - RingBuffer: fixed size, overwrites the oldest element when full and
//     counts what it dropped. Also used as a bounded "last N" log.
//
//   - BlockBuffer: fixed size, Add blocks while full. The producer is slowed
//     to the consumer's pace.
//
// All queues are FIFO, support concurrent access from multiple goroutines,
// and shut down either gracefully through CloseWrite() (consumers drain what
// is left, then Next returns ErrIteratorDone) or immediately through
// CloseWithError().
//
// Example usage:
//
//	q := buffer.RingN[Frame](64)
//
//	// producer
//	q.Add(frame)
//
//	// consumer
//	for {
//	    f, err := q.Next()
//	    if errors.Is(err, buffer.ErrIteratorDone) {
//	        break
//	    }
//	    ...
//	}
//
//	// graceful shutdown
//	q.CloseWrite()
package buffer
