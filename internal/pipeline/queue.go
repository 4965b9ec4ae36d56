package pipeline

import (
	"errors"
	"log"
	"sync/atomic"
)

// ErrOverflow is returned by Enqueue when the queue already holds the
// maximum number of unresolved segments. The segment is dropped, not queued.
var ErrOverflow = errors.New("segment queue overflow")

// SegmentQueue is the bounded ingress buffer between the capture source and
// the recognition workers. Enqueue never blocks: the capture path must not
// stall on a slow pipeline. "Unresolved" counts every admitted segment that
// has not yet produced a PipelineRecord, including segments already handed
// to a worker, so maxPending bounds end-to-end backlog, not just channel
// occupancy.
type SegmentQueue struct {
	ch         chan Segment
	maxPending int
	unresolved atomic.Int64
	overflows  atomic.Int64
	logger     *log.Logger
}

// NewSegmentQueue creates a queue admitting at most maxPending unresolved
// segments.
func NewSegmentQueue(maxPending int, logger *log.Logger) *SegmentQueue {
	if maxPending <= 0 {
		maxPending = 32
	}
	return &SegmentQueue{
		ch:         make(chan Segment, maxPending),
		maxPending: maxPending,
		logger:     logger,
	}
}

// Enqueue admits a segment or rejects it with ErrOverflow. Admission order
// equals arrival order.
func (q *SegmentQueue) Enqueue(seg Segment) error {
	for {
		n := q.unresolved.Load()
		if n >= int64(q.maxPending) {
			q.overflows.Add(1)
			q.logger.Printf("queue: overflow, dropping segment %d (unresolved=%d, max=%d)",
				seg.Sequence, n, q.maxPending)
			return ErrOverflow
		}
		if q.unresolved.CompareAndSwap(n, n+1) {
			break
		}
	}
	// Force-drops can resolve segments that are still sitting in the
	// channel, so a free unresolved slot does not guarantee channel room.
	select {
	case q.ch <- seg:
		return nil
	default:
		q.unresolved.Add(-1)
		q.overflows.Add(1)
		q.logger.Printf("queue: overflow, channel full for segment %d", seg.Sequence)
		return ErrOverflow
	}
}

// C is the worker-facing end of the queue. Segments arrive in admission order.
func (q *SegmentQueue) C() <-chan Segment {
	return q.ch
}

// Resolve releases one unresolved slot. Called exactly once per admitted
// segment, when its record is emitted.
func (q *SegmentQueue) Resolve() {
	if q.unresolved.Add(-1) < 0 {
		q.unresolved.Add(1)
	}
}

// Unresolved returns the number of admitted segments without a record yet.
func (q *SegmentQueue) Unresolved() int64 {
	return q.unresolved.Load()
}

// Overflows returns the number of segments rejected since startup.
func (q *SegmentQueue) Overflows() int64 {
	return q.overflows.Load()
}

// Close stops the worker-facing channel. No Enqueue may run concurrently
// with or after Close.
func (q *SegmentQueue) Close() {
	close(q.ch)
}
