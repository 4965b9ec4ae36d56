package pipeline

import (
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// SequencerMetrics captures aggregated counters for the reorder buffer.
type SequencerMetrics struct {
	Released      int64
	ForceDropped  int64
	LateDiscarded int64
}

type pendingEntry struct {
	admittedAt time.Time
	deadline   time.Time
	admitted   bool
	result     *TranslationResult
}

// Sequencer is the reorder buffer: results complete in any order upstream,
// records leave in strictly increasing sequence order. A single cursor plus
// a map keyed by sequence number; the mutex around them is the only
// cross-segment critical section in the pipeline.
//
// Head-of-line blocking is bounded by the grace window: if the next sequence
// to release has no result within grace of its admission, the sequencer
// synthesizes a force-dropped record and advances, so one slow segment can
// delay its successors by at most the grace window.
type Sequencer struct {
	mu      sync.Mutex
	next    int64
	started bool
	pending map[int64]*pendingEntry
	grace   time.Duration
	timer   *time.Timer
	closed  bool

	emit   func(PipelineRecord)
	logger *log.Logger

	released      atomic.Int64
	forceDropped  atomic.Int64
	lateDiscarded atomic.Int64
}

// NewSequencer creates a sequencer that hands released records to emit.
// emit is called with the mutex held and must not block; the broadcaster's
// Publish satisfies that.
func NewSequencer(grace time.Duration, emit func(PipelineRecord), logger *log.Logger) *Sequencer {
	if grace <= 0 {
		grace = 10 * time.Second
	}
	return &Sequencer{
		pending: make(map[int64]*pendingEntry),
		grace:   grace,
		emit:    emit,
		logger:  logger,
	}
}

// Expect registers an admitted segment. The grace window for its slot starts
// now. The first expected sequence initializes the release cursor.
//
// Returns false when the sequence cannot take a new admission: the cursor
// already passed it, its slot is already admitted, or a terminal result is
// already buffered for it. Each slot accepts exactly one admission, so
// every accepted Expect is matched by exactly one released record.
func (s *Sequencer) Expect(seq int64, admittedAt time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if !s.started {
		s.started = true
		s.next = seq
	}
	if seq < s.next {
		return false
	}
	e := s.pending[seq]
	if e == nil {
		e = &pendingEntry{}
		s.pending[seq] = e
	}
	if e.admitted || e.result != nil {
		return false
	}
	e.admitted = true
	e.admittedAt = admittedAt
	e.deadline = admittedAt.Add(s.grace)
	s.rearmLocked()
	return true
}

// Offer hands a completed result to the sequencer. Results for sequences
// already released are discarded: a late arrival after force-advance must
// never resurrect its slot or move the cursor backwards.
func (s *Sequencer) Offer(res TranslationResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if !s.started {
		s.started = true
		s.next = res.Sequence
	}
	if res.Sequence < s.next {
		s.lateDiscarded.Add(1)
		s.logger.Printf("sequencer: discarding late result for released sequence %d (next=%d)",
			res.Sequence, s.next)
		return
	}
	e := s.pending[res.Sequence]
	if e == nil {
		e = &pendingEntry{admittedAt: time.Now(), deadline: time.Now().Add(s.grace)}
		s.pending[res.Sequence] = e
	}
	if e.result != nil {
		s.lateDiscarded.Add(1)
		return
	}
	r := res
	e.result = &r
	s.drainLocked()
	s.rearmLocked()
}

// Flush releases every buffered entry in order, force-dropping slots whose
// result never arrived. Used at end of stream.
func (s *Sequencer) Flush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.pending) > 0 {
		e, ok := s.pending[s.next]
		if !ok {
			// Gap from a sequence that was never admitted. Skip the cursor
			// forward to the smallest buffered sequence.
			s.next = s.minPendingLocked()
			continue
		}
		if e.result != nil {
			s.releaseLocked(e)
		} else {
			s.forceDropLocked(e)
		}
		delete(s.pending, s.next)
		s.next++
	}
	s.rearmLocked()
}

// Close stops the sweep timer and rejects further input. Buffered entries
// are not released; call Flush first for an orderly drain.
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// Metrics returns a snapshot of the sequencer counters.
func (s *Sequencer) Metrics() SequencerMetrics {
	return SequencerMetrics{
		Released:      s.released.Load(),
		ForceDropped:  s.forceDropped.Load(),
		LateDiscarded: s.lateDiscarded.Load(),
	}
}

// drainLocked releases the run of consecutive ready entries at the cursor.
func (s *Sequencer) drainLocked() {
	for {
		e, ok := s.pending[s.next]
		if !ok || e.result == nil {
			return
		}
		s.releaseLocked(e)
		delete(s.pending, s.next)
		s.next++
	}
}

func (s *Sequencer) releaseLocked(e *pendingEntry) {
	res := e.result
	lat := time.Duration(0)
	if e.admitted {
		lat = time.Since(e.admittedAt)
	}
	s.released.Add(1)
	s.emit(PipelineRecord{
		Sequence:    res.Sequence,
		Status:      res.Status,
		Transcript:  res.Transcript,
		Translation: res.Translation,
		Confidence:  res.Confidence,
		LatencyMs:   lat.Milliseconds(),
		EmittedAt:   time.Now().UTC(),
		Duration:    res.Duration,
	})
}

func (s *Sequencer) forceDropLocked(e *pendingEntry) {
	lat := time.Since(e.admittedAt)
	s.released.Add(1)
	s.forceDropped.Add(1)
	s.logger.Printf("sequencer: force-dropping sequence %d after %v", s.next, lat.Round(time.Millisecond))
	s.emit(PipelineRecord{
		Sequence:  s.next,
		Status:    StatusForceDropped,
		LatencyMs: lat.Milliseconds(),
		EmittedAt: time.Now().UTC(),
	})
}

// sweep runs on timer expiry: force-drop the head slot if its grace window
// passed, then drain whatever that unblocked.
func (s *Sequencer) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	now := time.Now()
	for {
		e, ok := s.pending[s.next]
		if !ok {
			break
		}
		if e.result != nil {
			s.releaseLocked(e)
		} else if !now.Before(e.deadline) {
			s.forceDropLocked(e)
		} else {
			break
		}
		delete(s.pending, s.next)
		s.next++
	}
	s.rearmLocked()
}

// rearmLocked points the single sweep timer at the head slot's deadline.
// Only the head can block release, so no other deadline matters.
func (s *Sequencer) rearmLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.closed {
		return
	}
	e, ok := s.pending[s.next]
	if !ok || e.result != nil {
		return
	}
	d := time.Until(e.deadline)
	if d < 0 {
		d = 0
	}
	s.timer = time.AfterFunc(d, s.sweep)
}

func (s *Sequencer) minPendingLocked() int64 {
	var min int64
	first := true
	for seq := range s.pending {
		if first || seq < min {
			min = seq
			first = false
		}
	}
	return min
}
