package pipeline

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultSubscriberBuffer is the per-subscriber channel depth.
const DefaultSubscriberBuffer = 64

// Subscriber is one consumer of the ordered record stream. Each subscriber
// has an independent buffer; a subscriber that stops reading loses its
// oldest records but never blocks the sequencer or its peers.
type Subscriber struct {
	id      string
	ch      chan PipelineRecord
	dropped atomic.Int64
}

// ID returns the subscriber's unique identifier.
func (s *Subscriber) ID() string { return s.id }

// Records is the subscriber's receive channel. Closed on Unsubscribe or
// broadcaster Close.
func (s *Subscriber) Records() <-chan PipelineRecord { return s.ch }

// Dropped returns how many records were discarded because this subscriber
// fell behind.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// Broadcaster fans the ordered record stream out to any number of
// subscribers (displays, history, audio monitor). Publish never blocks.
type Broadcaster struct {
	mu      sync.Mutex
	subs    map[string]*Subscriber
	bufSize int
	closed  bool
	logger  *log.Logger
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer
// size (DefaultSubscriberBuffer if <= 0).
func NewBroadcaster(bufSize int, logger *log.Logger) *Broadcaster {
	if bufSize <= 0 {
		bufSize = DefaultSubscriberBuffer
	}
	return &Broadcaster{
		subs:    make(map[string]*Subscriber),
		bufSize: bufSize,
		logger:  logger,
	}
}

// Subscribe attaches a new consumer. The consumer sees every record
// published after this call, in order, minus any it was too slow to take.
func (b *Broadcaster) Subscribe() *Subscriber {
	sub := &Subscriber{
		id: uuid.NewString(),
		ch: make(chan PipelineRecord, b.bufSize),
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Unsubscribe detaches a consumer and closes its channel.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub.id]; !ok {
		return
	}
	delete(b.subs, sub.id)
	close(sub.ch)
	if n := sub.dropped.Load(); n > 0 {
		b.logger.Printf("broadcaster: subscriber %s detached, %d records shed", sub.id, n)
	}
}

// Publish delivers a record to every subscriber without blocking. A full
// subscriber buffer sheds its oldest record to make room for the new one.
func (b *Broadcaster) Publish(rec PipelineRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		select {
		case sub.ch <- rec:
			continue
		default:
		}
		// Buffer full: drop oldest, then retry once. The second send can
		// only fail if the subscriber drained concurrently, in which case
		// there is room again on the next publish.
		select {
		case <-sub.ch:
			sub.dropped.Add(1)
		default:
		}
		select {
		case sub.ch <- rec:
		default:
			sub.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of attached subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close detaches all subscribers and closes their channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
