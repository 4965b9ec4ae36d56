package pipeline

import (
	"io"
	"log"
	"testing"
	"time"
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestSegmentQueue_EnqueueAndReceive(t *testing.T) {
	q := NewSegmentQueue(4, testLogger())

	for i := int64(0); i < 3; i++ {
		if err := q.Enqueue(Segment{Sequence: i}); err != nil {
			t.Fatalf("Enqueue(%d) = %v, want nil", i, err)
		}
	}
	if q.Unresolved() != 3 {
		t.Errorf("Unresolved() = %d, want 3", q.Unresolved())
	}

	// Segments come out in admission order.
	for i := int64(0); i < 3; i++ {
		seg := <-q.C()
		if seg.Sequence != i {
			t.Errorf("received sequence %d, want %d", seg.Sequence, i)
		}
	}
}

func TestSegmentQueue_OverflowAtMaxPending(t *testing.T) {
	q := NewSegmentQueue(2, testLogger())

	if err := q.Enqueue(Segment{Sequence: 0}); err != nil {
		t.Fatalf("Enqueue(0) = %v", err)
	}
	if err := q.Enqueue(Segment{Sequence: 1}); err != nil {
		t.Fatalf("Enqueue(1) = %v", err)
	}

	if err := q.Enqueue(Segment{Sequence: 2}); err != ErrOverflow {
		t.Errorf("Enqueue(2) = %v, want ErrOverflow", err)
	}
	if q.Overflows() != 1 {
		t.Errorf("Overflows() = %d, want 1", q.Overflows())
	}
	// The rejected segment must not occupy a slot.
	if q.Unresolved() != 2 {
		t.Errorf("Unresolved() = %d, want 2", q.Unresolved())
	}
}

func TestSegmentQueue_ResolveFreesCapacity(t *testing.T) {
	q := NewSegmentQueue(1, testLogger())

	if err := q.Enqueue(Segment{Sequence: 0}); err != nil {
		t.Fatalf("Enqueue(0) = %v", err)
	}
	if err := q.Enqueue(Segment{Sequence: 1}); err != ErrOverflow {
		t.Fatalf("Enqueue(1) = %v, want ErrOverflow", err)
	}

	// A worker takes the segment, but the slot stays occupied until its
	// record is emitted.
	<-q.C()
	if err := q.Enqueue(Segment{Sequence: 1}); err != ErrOverflow {
		t.Errorf("Enqueue(1) after dequeue = %v, want ErrOverflow (slot still unresolved)", err)
	}

	q.Resolve()
	if q.Unresolved() != 0 {
		t.Errorf("Unresolved() = %d, want 0", q.Unresolved())
	}

	// A re-submission with the same sequence is a fresh admission attempt.
	if err := q.Enqueue(Segment{Sequence: 1}); err != nil {
		t.Errorf("Enqueue(1) after Resolve = %v, want nil", err)
	}
}

func TestSegmentQueue_EnqueueNonBlockingWhenChannelFull(t *testing.T) {
	q := NewSegmentQueue(2, testLogger())

	if err := q.Enqueue(Segment{Sequence: 0}); err != nil {
		t.Fatalf("Enqueue(0) = %v", err)
	}
	if err := q.Enqueue(Segment{Sequence: 1}); err != nil {
		t.Fatalf("Enqueue(1) = %v", err)
	}

	// Force-drops resolve segments that no worker ever dequeued, so the
	// unresolved count can reach zero while the channel stays full.
	q.Resolve()
	q.Resolve()
	if q.Unresolved() != 0 {
		t.Fatalf("Unresolved() = %d, want 0", q.Unresolved())
	}

	done := make(chan error, 1)
	go func() {
		done <- q.Enqueue(Segment{Sequence: 2})
	}()
	select {
	case err := <-done:
		if err != ErrOverflow {
			t.Errorf("Enqueue(2) with full channel = %v, want ErrOverflow", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked on a full channel")
	}

	if q.Unresolved() != 0 {
		t.Errorf("Unresolved() = %d after rejected enqueue, want 0", q.Unresolved())
	}
	if q.Overflows() != 1 {
		t.Errorf("Overflows() = %d, want 1", q.Overflows())
	}
}
