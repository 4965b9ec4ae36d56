package pipeline

import (
	"testing"
)

func TestBroadcaster_FanOut(t *testing.T) {
	b := NewBroadcaster(8, testLogger())
	defer b.Close()

	a := b.Subscribe()
	c := b.Subscribe()

	if b.SubscriberCount() != 2 {
		t.Fatalf("SubscriberCount() = %d, want 2", b.SubscriberCount())
	}

	for seq := int64(0); seq < 3; seq++ {
		b.Publish(PipelineRecord{Sequence: seq, Status: StatusOk})
	}

	for _, sub := range []*Subscriber{a, c} {
		for seq := int64(0); seq < 3; seq++ {
			rec := <-sub.Records()
			if rec.Sequence != seq {
				t.Errorf("subscriber %s got sequence %d, want %d", sub.ID(), rec.Sequence, seq)
			}
		}
	}
}

func TestBroadcaster_SlowSubscriberShedsOldest(t *testing.T) {
	b := NewBroadcaster(2, testLogger())
	defer b.Close()

	slow := b.Subscribe()
	fast := b.Subscribe()

	// Publish more than the slow subscriber's buffer without reading it.
	// Publish must never block, and the slow buffer keeps the newest records.
	for seq := int64(0); seq < 5; seq++ {
		b.Publish(PipelineRecord{Sequence: seq})
	}

	// The fast subscriber, read promptly, would have seen everything; here we
	// only check it still gets the newest ones its buffer holds.
	rec := <-fast.Records()
	if rec.Sequence != 3 {
		t.Errorf("fast subscriber first record = %d, want 3 (oldest shed)", rec.Sequence)
	}

	got := []int64{(<-slow.Records()).Sequence, (<-slow.Records()).Sequence}
	if got[0] != 3 || got[1] != 4 {
		t.Errorf("slow subscriber kept %v, want [3 4]", got)
	}
	if slow.Dropped() != 3 {
		t.Errorf("slow.Dropped() = %d, want 3", slow.Dropped())
	}
}

func TestBroadcaster_UnsubscribeClosesChannel(t *testing.T) {
	b := NewBroadcaster(4, testLogger())
	defer b.Close()

	sub := b.Subscribe()
	b.Unsubscribe(sub)

	if _, ok := <-sub.Records(); ok {
		t.Error("Records() should be closed after Unsubscribe")
	}
	if b.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", b.SubscriberCount())
	}

	// Double unsubscribe is a no-op, not a double close.
	b.Unsubscribe(sub)
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := NewBroadcaster(4, testLogger())
	b.Close()

	sub := b.Subscribe()
	if _, ok := <-sub.Records(); ok {
		t.Error("subscription after Close should be immediately closed")
	}

	// Publish after close must not panic.
	b.Publish(PipelineRecord{Sequence: 1})
}
