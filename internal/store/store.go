package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Session represents one captioned event (a talk, a performance).
type Session struct {
	ID         string     `json:"id"`
	SourceLang string     `json:"source_lang"`
	TargetLang string     `json:"target_lang"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at,omitempty"`
}

// Record is a persisted pipeline record: one row per released caption,
// including failed and dropped placeholders so replays show the same
// timeline the audience saw.
type Record struct {
	ID          string    `json:"id,omitempty"`
	SessionID   string    `json:"session_id"`
	Sequence    int64     `json:"sequence"`
	Status      string    `json:"status"`
	Transcript  string    `json:"transcript,omitempty"`
	Translation string    `json:"translation,omitempty"`
	Confidence  *float64  `json:"confidence,omitempty"`
	LatencyMs   int64     `json:"latency_ms"`
	DurationMs  int64     `json:"duration_ms"`
	EmittedAt   time.Time `json:"emitted_at"`
}

// UsageTotals aggregates the billable units consumed by a session.
type UsageTotals struct {
	Records          int   `json:"records"`
	AudioSeconds     int   `json:"audio_seconds"`
	TranscriptChars  int   `json:"transcript_chars"`
	TranslationChars int   `json:"translation_chars"`
}

func (s *Store) CreateSession(ctx context.Context, sess Session) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO sessions (id, source_lang, target_lang, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, sess.ID, sess.SourceLang, sess.TargetLang, sess.StartedAt)
	return err
}

func (s *Store) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	_, err := s.db.Exec(ctx, `
		UPDATE sessions SET ended_at = COALESCE(ended_at, $1) WHERE id = $2
	`, endedAt, sessionID)
	return err
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(ctx, `
		SELECT id, source_lang, target_lang, started_at, ended_at
		FROM sessions WHERE id = $1
	`, sessionID).Scan(&sess.ID, &sess.SourceLang, &sess.TargetLang, &sess.StartedAt, &sess.EndedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *Store) InsertRecord(ctx context.Context, rec Record) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO records (id, session_id, sequence, status, transcript, translation, confidence, latency_ms, duration_ms, emitted_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, sequence) DO NOTHING
	`, rec.SessionID, rec.Sequence, rec.Status, rec.Transcript, rec.Translation,
		rec.Confidence, rec.LatencyMs, rec.DurationMs, rec.EmittedAt)
	return err
}

// ListRecords returns a session's records in sequence order, newest-limited.
func (s *Store) ListRecords(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 1000 {
		limit = 200
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, session_id, sequence, status, transcript, translation, confidence, latency_ms, duration_ms, emitted_at
		FROM (
			SELECT * FROM records WHERE session_id = $1 ORDER BY sequence DESC LIMIT $2
		) recent
		ORDER BY sequence ASC
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Sequence, &rec.Status,
			&rec.Transcript, &rec.Translation, &rec.Confidence,
			&rec.LatencyMs, &rec.DurationMs, &rec.EmittedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Usage sums billable units across a session's records. Failed and dropped
// records still count their audio seconds: the STT call was made (or timed
// out mid-flight), so the minutes were spent.
func (s *Store) Usage(ctx context.Context, sessionID string) (UsageTotals, error) {
	var u UsageTotals
	err := s.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(duration_ms) / 1000, 0),
		       COALESCE(SUM(LENGTH(transcript)), 0),
		       COALESCE(SUM(LENGTH(translation)), 0)
		FROM records WHERE session_id = $1
	`, sessionID).Scan(&u.Records, &u.AudioSeconds, &u.TranscriptChars, &u.TranslationChars)
	return u, err
}

// DeleteRecordsBefore removes records emitted before the cutoff. Returns the
// number of rows removed. Used by the retention job.
func (s *Store) DeleteRecordsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM records WHERE emitted_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
