package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventType represents the type of pipeline event
type EventType string

const (
	EventSessionStarted      EventType = "session_started"
	EventSegmentAdmitted     EventType = "segment_admitted"
	EventOverflow            EventType = "overflow"
	EventRecognitionFailed   EventType = "recognition_failed"
	EventRecognitionTimedOut EventType = "recognition_timed_out"
	EventTranslationFailed   EventType = "translation_failed"
	EventTranslationTimedOut EventType = "translation_timed_out"
	EventRecordReleased      EventType = "record_released"
	EventForceDropped        EventType = "force_dropped"
	EventStreamFlushed       EventType = "stream_flushed"
	EventSessionEnded        EventType = "session_ended"
)

// Logger provides async event logging to the database
type Logger struct {
	db *pgxpool.Pool
}

// New creates a new event logger
func New(db *pgxpool.Pool) *Logger {
	return &Logger{db: db}
}

// Log writes an event to the database synchronously
func (l *Logger) Log(ctx context.Context, sessionID string, eventType EventType, data map[string]any) error {
	if l.db == nil || sessionID == "" {
		return nil // Silently skip if no DB or session ID
	}

	dataJSON, err := json.Marshal(data)
	if err != nil {
		dataJSON = []byte("{}")
	}

	_, err = l.db.Exec(ctx, `
		INSERT INTO pipeline_events (session_id, event_type, event_data)
		VALUES ($1, $2, $3)
	`, sessionID, string(eventType), dataJSON)

	return err
}

// LogAsync logs an event without blocking the caller
func (l *Logger) LogAsync(sessionID string, eventType EventType, data map[string]any) {
	if l.db == nil || sessionID == "" {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.Log(ctx, sessionID, eventType, data)
	}()
}
