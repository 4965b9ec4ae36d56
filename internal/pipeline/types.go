// Package pipeline implements the chunk pipeline: bounded ingestion of
// audio segments, concurrent recognition and translation, and in-order
// release of bilingual caption records.
package pipeline

import "time"

// Status is the terminal disposition of a segment's journey through the
// pipeline. Every admitted segment ends up with exactly one status.
type Status string

const (
	StatusOk                    Status = "ok"
	StatusRecognitionFailed     Status = "recognition_failed"
	StatusRecognitionTimedOut   Status = "recognition_timed_out"
	StatusTranslationFailed     Status = "translation_failed"
	StatusTranslationTimedOut   Status = "translation_timed_out"
	StatusSkippedUpstreamFailed Status = "skipped_upstream_failed"
	StatusForceDropped          Status = "force_dropped"
	StatusOverflowDropped       Status = "overflow_dropped"
)

// Segment is one unit of captured audio. Immutable after creation; the
// pipeline owns it from admission until its record is released.
type Segment struct {
	Sequence   int64
	Audio      []byte
	CapturedAt time.Time
	Duration   time.Duration
}

// RecognitionResult is produced exactly once per admitted segment by the
// recognition workers.
type RecognitionResult struct {
	Sequence   int64
	Status     Status
	Transcript string
	Confidence float64
	Duration   time.Duration // audio duration, carried through for usage accounting
}

// TranslationResult is produced exactly once per RecognitionResult by the
// translation workers and handed to the sequencer.
type TranslationResult struct {
	Sequence    int64
	Status      Status
	Transcript  string
	Translation string
	Confidence  float64
	Duration    time.Duration
}

// PipelineRecord is the unit released by the sequencer. Records are emitted
// in strictly increasing sequence order with no silent gaps: a failed or
// dropped segment still yields a record so displays can render a placeholder.
type PipelineRecord struct {
	Sequence    int64         `json:"sequence"`
	Status      Status        `json:"status"`
	Transcript  string        `json:"transcript,omitempty"`
	Translation string        `json:"translation,omitempty"`
	Confidence  float64       `json:"confidence,omitempty"`
	LatencyMs   int64         `json:"latency_ms"`
	EmittedAt   time.Time     `json:"emitted_at"`
	Duration    time.Duration `json:"-"`
}

// Final reports whether the record carries usable translated text.
func (r PipelineRecord) Final() bool {
	return r.Status == StatusOk
}
