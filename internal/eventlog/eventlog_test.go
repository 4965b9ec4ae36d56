package eventlog

import (
	"context"
	"testing"
)

func TestEventTypeConstants(t *testing.T) {
	// Verify all event types are defined as expected
	expectedEvents := map[EventType]string{
		EventSessionStarted:      "session_started",
		EventSegmentAdmitted:     "segment_admitted",
		EventOverflow:            "overflow",
		EventRecognitionFailed:   "recognition_failed",
		EventRecognitionTimedOut: "recognition_timed_out",
		EventTranslationFailed:   "translation_failed",
		EventTranslationTimedOut: "translation_timed_out",
		EventRecordReleased:      "record_released",
		EventForceDropped:        "force_dropped",
		EventStreamFlushed:       "stream_flushed",
		EventSessionEnded:        "session_ended",
	}

	for eventType, expectedValue := range expectedEvents {
		if string(eventType) != expectedValue {
			t.Errorf("EventType %q = %q, want %q", expectedValue, string(eventType), expectedValue)
		}
	}
}

func TestLogWithNilDB(t *testing.T) {
	// A logger without a database silently skips, so handlers never need a
	// nil check.
	l := New(nil)

	if err := l.Log(context.Background(), "session-1", EventRecordReleased, map[string]any{"sequence": 1}); err != nil {
		t.Errorf("Log() with nil db = %v, want nil", err)
	}

	// Same for missing session IDs.
	if err := l.Log(context.Background(), "", EventRecordReleased, nil); err != nil {
		t.Errorf("Log() with empty session = %v, want nil", err)
	}

	// LogAsync must not panic either.
	l.LogAsync("", EventOverflow, nil)
}
