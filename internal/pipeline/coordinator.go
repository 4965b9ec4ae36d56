package pipeline

import (
	"context"
	"errors"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dkurian/surtitle/internal/stt"
	"github.com/dkurian/surtitle/internal/translate"
)

// Config holds the pipeline tuning knobs.
type Config struct {
	MaxPending       int           // bound on unresolved segments
	RecognizeWorkers int           // recognition pool size
	TranslateWorkers int           // translation pool size
	RecognizeTimeout time.Duration // per-call recognizer deadline
	TranslateTimeout time.Duration // per-call translator deadline
	GraceWindow      time.Duration // head-of-line force-advance bound
	SourceLang       string
	TargetLang       string
}

func (c Config) withDefaults() Config {
	if c.MaxPending <= 0 {
		c.MaxPending = 32
	}
	if c.RecognizeWorkers <= 0 {
		c.RecognizeWorkers = 4
	}
	if c.TranslateWorkers <= 0 {
		c.TranslateWorkers = 4
	}
	if c.RecognizeTimeout <= 0 {
		c.RecognizeTimeout = 8 * time.Second
	}
	if c.TranslateTimeout <= 0 {
		c.TranslateTimeout = 5 * time.Second
	}
	if c.GraceWindow <= 0 {
		c.GraceWindow = 12 * time.Second
	}
	return c
}

// Hooks let the host observe pipeline events without coupling the pipeline
// to persistence or alerting. All hooks are optional and must not block.
type Hooks struct {
	// OnEvent receives pipeline lifecycle events (overflow, timeouts,
	// force drops) with a small data payload.
	OnEvent func(event string, sequence int64, data map[string]any)
}

func (h Hooks) event(event string, sequence int64, data map[string]any) {
	if h.OnEvent != nil {
		h.OnEvent(event, sequence, data)
	}
}

// Event names passed to Hooks.OnEvent.
const (
	EventSegmentAdmitted     = "segment_admitted"
	EventOverflow            = "overflow"
	EventRecognitionFailed   = "recognition_failed"
	EventRecognitionTimedOut = "recognition_timed_out"
	EventTranslationFailed   = "translation_failed"
	EventTranslationTimedOut = "translation_timed_out"
	EventRecordReleased      = "record_released"
	EventStreamFlushed       = "stream_flushed"
)

// Coordinator wires the stages together: bounded queue, recognition pool,
// translation pool, sequencer, broadcaster. Stages are stateless per
// segment; the sequencer is the only component with cross-segment state.
type Coordinator struct {
	cfg        Config
	queue      *SegmentQueue
	sequencer  *Sequencer
	bc         *Broadcaster
	recognizer stt.Recognizer
	translator translate.Translator
	hooks      Hooks
	logger     *log.Logger

	recCh  chan RecognitionResult
	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewCoordinator builds a pipeline around the given collaborators. Call
// Start before ingesting.
func NewCoordinator(cfg Config, rec stt.Recognizer, tr translate.Translator, hooks Hooks, logger *log.Logger) *Coordinator {
	cfg = cfg.withDefaults()
	c := &Coordinator{
		cfg:        cfg,
		queue:      NewSegmentQueue(cfg.MaxPending, logger),
		bc:         NewBroadcaster(0, logger),
		recognizer: rec,
		translator: tr,
		hooks:      hooks,
		logger:     logger,
		recCh:      make(chan RecognitionResult, cfg.MaxPending),
	}
	c.sequencer = NewSequencer(cfg.GraceWindow, c.release, logger)
	return c
}

// Start launches the worker pools. Workers run until Close.
func (c *Coordinator) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)
	c.group = g

	for i := 0; i < c.cfg.RecognizeWorkers; i++ {
		g.Go(func() error {
			c.recognizeLoop(ctx)
			return nil
		})
	}
	for i := 0; i < c.cfg.TranslateWorkers; i++ {
		g.Go(func() error {
			c.translateLoop(ctx)
			return nil
		})
	}
	c.logger.Printf("pipeline: started (recognize=%d translate=%d maxPending=%d grace=%v)",
		c.cfg.RecognizeWorkers, c.cfg.TranslateWorkers, c.cfg.MaxPending, c.cfg.GraceWindow)
}

// ErrDuplicate is returned by Ingest for a sequence number whose slot is
// already taken: in flight, resolved, or released. Its record either exists
// or is on the way, so admitting the segment again could never produce one.
var ErrDuplicate = errors.New("duplicate segment sequence")

// Ingest admits one segment. Returns ErrOverflow when the backlog bound is
// hit; the rejected sequence is recorded as dropped so the sequencer never
// waits for it. Re-submitting a sequence that is in flight or already has a
// record (including an overflow drop) returns ErrDuplicate.
func (c *Coordinator) Ingest(seg Segment) error {
	now := time.Now()
	if !c.sequencer.Expect(seg.Sequence, now) {
		c.logger.Printf("pipeline: rejecting duplicate segment %d", seg.Sequence)
		return ErrDuplicate
	}
	if err := c.queue.Enqueue(seg); err != nil {
		c.hooks.event(EventOverflow, seg.Sequence, map[string]any{
			"unresolved": c.queue.Unresolved(),
		})
		c.sequencer.Offer(TranslationResult{
			Sequence: seg.Sequence,
			Status:   StatusOverflowDropped,
		})
		return err
	}
	c.hooks.event(EventSegmentAdmitted, seg.Sequence, map[string]any{
		"duration_ms": seg.Duration.Milliseconds(),
	})
	return nil
}

// Subscribe attaches a consumer to the ordered output stream.
func (c *Coordinator) Subscribe() *Subscriber {
	return c.bc.Subscribe()
}

// Unsubscribe detaches a consumer.
func (c *Coordinator) Unsubscribe(sub *Subscriber) {
	c.bc.Unsubscribe(sub)
}

// Flush releases everything the sequencer holds, in order. Called on
// end of stream.
func (c *Coordinator) Flush() {
	c.sequencer.Flush()
	c.hooks.event(EventStreamFlushed, 0, nil)
}

// Queue exposes the ingress queue for metrics.
func (c *Coordinator) Queue() *SegmentQueue { return c.queue }

// SubscriberCount reports attached output consumers.
func (c *Coordinator) SubscriberCount() int { return c.bc.SubscriberCount() }

// SequencerMetrics returns the reorder buffer counters.
func (c *Coordinator) SequencerMetrics() SequencerMetrics { return c.sequencer.Metrics() }

// Close stops the workers and detaches all subscribers. In-flight
// collaborator calls are cancelled via context; their slots are resolved by
// the grace window if a record was not yet produced.
func (c *Coordinator) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.group != nil {
		_ = c.group.Wait()
	}
	c.sequencer.Close()
	c.bc.Close()
}

// release is the sequencer's emit callback. Runs under the sequencer lock;
// everything here is non-blocking.
func (c *Coordinator) release(rec PipelineRecord) {
	if rec.Status != StatusOverflowDropped {
		c.queue.Resolve()
	}
	c.hooks.event(EventRecordReleased, rec.Sequence, map[string]any{
		"status":     string(rec.Status),
		"latency_ms": rec.LatencyMs,
	})
	c.bc.Publish(rec)
}

func (c *Coordinator) recognizeLoop(ctx context.Context) {
	for {
		var seg Segment
		var ok bool
		select {
		case <-ctx.Done():
			return
		case seg, ok = <-c.queue.C():
			if !ok {
				return
			}
		}

		res := c.recognizeOne(ctx, seg)
		select {
		case <-ctx.Done():
			return
		case c.recCh <- res:
		}
	}
}

func (c *Coordinator) recognizeOne(ctx context.Context, seg Segment) RecognitionResult {
	callCtx, cancel := context.WithTimeout(ctx, c.cfg.RecognizeTimeout)
	defer cancel()

	tr, err := c.recognizer.Recognize(callCtx, seg.Audio, c.cfg.SourceLang)
	res := RecognitionResult{Sequence: seg.Sequence, Duration: seg.Duration}
	switch {
	case err == nil:
		res.Status = StatusOk
		res.Transcript = tr.Text
		res.Confidence = tr.Confidence
	case errors.Is(err, context.DeadlineExceeded):
		res.Status = StatusRecognitionTimedOut
		c.logger.Printf("pipeline: recognition timed out for segment %d", seg.Sequence)
		c.hooks.event(EventRecognitionTimedOut, seg.Sequence, nil)
	case errors.Is(err, context.Canceled):
		// Shutdown, not a provider failure. The worker loop drops the
		// result; keep the logs and the event trail quiet.
		res.Status = StatusRecognitionFailed
	default:
		res.Status = StatusRecognitionFailed
		c.logger.Printf("pipeline: recognition failed for segment %d: %v", seg.Sequence, err)
		c.hooks.event(EventRecognitionFailed, seg.Sequence, map[string]any{"error": err.Error()})
	}
	return res
}

func (c *Coordinator) translateLoop(ctx context.Context) {
	for {
		var res RecognitionResult
		select {
		case <-ctx.Done():
			return
		case res = <-c.recCh:
		}
		c.sequencer.Offer(c.translateOne(ctx, res))
	}
}

func (c *Coordinator) translateOne(ctx context.Context, in RecognitionResult) TranslationResult {
	out := TranslationResult{
		Sequence:   in.Sequence,
		Transcript: in.Transcript,
		Confidence: in.Confidence,
		Duration:   in.Duration,
	}

	// A segment that already failed recognition skips the translator: no
	// point spending a call on text we do not have.
	if in.Status != StatusOk {
		out.Status = StatusSkippedUpstreamFailed
		if in.Status == StatusRecognitionFailed || in.Status == StatusRecognitionTimedOut {
			out.Status = in.Status
		}
		return out
	}

	// Empty transcript means no speech was recognized; pass it through as
	// an Ok record with empty text rather than burning a translation call.
	if in.Transcript == "" {
		out.Status = StatusOk
		return out
	}

	callCtx, cancel := context.WithTimeout(ctx, c.cfg.TranslateTimeout)
	defer cancel()

	text, err := c.translator.Translate(callCtx, in.Transcript, c.cfg.SourceLang, c.cfg.TargetLang)
	switch {
	case err == nil:
		out.Status = StatusOk
		out.Translation = text
	case errors.Is(err, context.DeadlineExceeded):
		out.Status = StatusTranslationTimedOut
		c.logger.Printf("pipeline: translation timed out for segment %d", in.Sequence)
		c.hooks.event(EventTranslationTimedOut, in.Sequence, nil)
	case errors.Is(err, context.Canceled):
		// Shutdown; see recognizeOne.
		out.Status = StatusTranslationFailed
	default:
		out.Status = StatusTranslationFailed
		c.logger.Printf("pipeline: translation failed for segment %d: %v", in.Sequence, err)
		c.hooks.event(EventTranslationFailed, in.Sequence, map[string]any{"error": err.Error()})
	}
	return out
}
