package voice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/haivivi/nova/pkg/buffer"
)

// QueuePolicy selects what the outbound frame queue does when the transport
// falls behind the microphone.
type QueuePolicy int

const (
	// QueueDropOldest keeps the most recent frames and drops the oldest.
	QueueDropOldest QueuePolicy = iota
	// QueueUnbounded keeps every frame; memory grows while the transport
	// is slow.
	QueueUnbounded
	// QueueBlock makes capture wait for the transport when the queue is full.
	QueueBlock
)

// DefaultQueueSize bounds the queue for QueueDropOldest and QueueBlock:
// 64 frames of 4096 samples at 16 kHz is about 16 seconds of audio.
const DefaultQueueSize = 64

func (p QueuePolicy) String() string {
	switch p {
	case QueueDropOldest:
		return "drop"
	case QueueUnbounded:
		return "unbounded"
	case QueueBlock:
		return "block"
	}
	return fmt.Sprintf("QueuePolicy(%d)", int(p))
}

// ParseQueuePolicy parses "drop", "unbounded" or "block".
func ParseQueuePolicy(s string) (QueuePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop", "drop-oldest":
		return QueueDropOldest, nil
	case "unbounded":
		return QueueUnbounded, nil
	case "block":
		return QueueBlock, nil
	}
	return 0, fmt.Errorf("voice: unknown queue policy %q", s)
}

// ErrQueueClosed is returned by FrameQueue.Pop after Close once the queue
// is drained, and by Push after Close.
var ErrQueueClosed = errors.New("voice: frame queue closed")

// FrameQueue carries encoded frames from the capture task to the send task
// in capture order.
type FrameQueue struct {
	policy QueuePolicy
	q      buffer.Queue[Media]
	ring   *buffer.RingBuffer[Media]
}

// NewFrameQueue creates a queue with the given policy. size bounds the
// queue for QueueDropOldest and QueueBlock; values below 1 mean
// DefaultQueueSize.
func NewFrameQueue(policy QueuePolicy, size int) *FrameQueue {
	if size < 1 {
		size = DefaultQueueSize
	}
	fq := &FrameQueue{policy: policy}
	switch policy {
	case QueueUnbounded:
		fq.q = buffer.N[Media](size)
	case QueueBlock:
		fq.q = buffer.BlockN[Media](size)
	default:
		fq.policy = QueueDropOldest
		fq.ring = buffer.RingN[Media](size)
		fq.q = fq.ring
	}
	return fq
}

// Policy returns the queue policy.
func (fq *FrameQueue) Policy() QueuePolicy {
	return fq.policy
}

// Push appends a frame. Under QueueBlock it waits while the queue is full.
func (fq *FrameQueue) Push(m Media) error {
	if err := fq.q.Add(m); err != nil {
		return ErrQueueClosed
	}
	return nil
}

// Pop removes the oldest frame, blocking while the queue is empty.
func (fq *FrameQueue) Pop() (Media, error) {
	m, err := fq.q.Next()
	if err != nil {
		return Media{}, ErrQueueClosed
	}
	return m, nil
}

// Len returns the number of queued frames.
func (fq *FrameQueue) Len() int {
	return fq.q.Len()
}

// Dropped returns the number of frames discarded by QueueDropOldest.
func (fq *FrameQueue) Dropped() int64 {
	if fq.ring == nil {
		return 0
	}
	return fq.ring.Dropped()
}

// Close discards queued frames and unblocks Push and Pop.
func (fq *FrameQueue) Close() {
	fq.q.CloseWithError(ErrQueueClosed)
}

// closeWrite rejects further pushes; Pop drains what is queued.
func (fq *FrameQueue) closeWrite() {
	fq.q.CloseWrite()
}
