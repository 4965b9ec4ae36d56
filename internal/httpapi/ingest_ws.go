package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/dkurian/surtitle/internal/eventlog"
	"github.com/dkurian/surtitle/internal/pipeline"
	"github.com/dkurian/surtitle/internal/store"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Capture stream message types. The capture client drives the session:
// start, then one segment message per audio chunk, then stop.
type captureMessage struct {
	Event   string          `json:"event"`
	Start   *captureStart   `json:"start,omitempty"`
	Segment *captureSegment `json:"segment,omitempty"`
}

type captureStart struct {
	SessionID  string `json:"sessionId,omitempty"`
	SourceLang string `json:"sourceLang,omitempty"`
	TargetLang string `json:"targetLang,omitempty"`
}

type captureSegment struct {
	Sequence   int64  `json:"sequence"`
	Payload    string `json:"payload"` // Base64 LINEAR16 audio
	CapturedAt string `json:"capturedAt,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// captureReply is sent back to the capture client for admission outcomes
// and session lifecycle.
type captureReply struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	Sequence  int64  `json:"sequence,omitempty"`
	Message   string `json:"message,omitempty"`
}

// captureSession manages one capture client's websocket connection.
type captureSession struct {
	sessionID string

	conn   *websocket.Conn
	connMu sync.Mutex

	router   *Router
	pipe     *pipeline.Coordinator
	store    *store.Store
	eventLog *eventlog.Logger
	logger   *log.Logger

	segments int64

	ctx    context.Context
	cancel context.CancelFunc
}

func (r *Router) handleIngestWS(w http.ResponseWriter, req *http.Request) {
	if !r.ingestAuthorized(req) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if !r.sessions.Add() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	defer r.sessions.Done()

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("ingest_ws: upgrade failed: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(req.Context())
	session := &captureSession{
		conn:     conn,
		router:   r,
		pipe:     r.pipe,
		store:    r.store,
		eventLog: r.eventLog,
		logger:   r.logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	r.logger.Printf("ingest_ws: connection established, waiting for start message")
	session.run()
}

func (s *captureSession) run() {
	defer s.cleanup()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Printf("ingest_ws: connection closed for session %s", s.sessionID)
			} else {
				s.logger.Printf("ingest_ws: read error for session %s: %v", s.sessionID, err)
			}
			return
		}

		var capMsg captureMessage
		if err := json.Unmarshal(msg, &capMsg); err != nil {
			s.logger.Printf("ingest_ws: failed to parse message: %v", err)
			continue
		}

		switch capMsg.Event {
		case "start":
			if err := s.handleStart(capMsg.Start); err != nil {
				s.logger.Printf("ingest_ws: start error: %v", err)
				return
			}

		case "segment":
			s.handleSegment(capMsg.Segment)

		case "stop":
			s.handleStop()
			return
		}
	}
}

func (s *captureSession) handleStart(start *captureStart) error {
	if start == nil {
		start = &captureStart{}
	}

	s.sessionID = start.SessionID
	if s.sessionID == "" {
		s.sessionID = uuid.NewString()
	}

	sourceLang := s.router.cfg.SourceLang
	if start.SourceLang != "" {
		sourceLang = start.SourceLang
	}
	targetLang := s.router.cfg.TargetLang
	if start.TargetLang != "" {
		targetLang = start.TargetLang
	}

	now := time.Now().UTC()
	if err := s.store.CreateSession(s.ctx, store.Session{
		ID:         s.sessionID,
		SourceLang: sourceLang,
		TargetLang: targetLang,
		StartedAt:  now,
	}); err != nil {
		s.logger.Printf("ingest_ws: failed to persist session %s: %v", s.sessionID, err)
	}
	s.eventLog.LogAsync(s.sessionID, eventlog.EventSessionStarted, map[string]any{
		"source_lang": sourceLang,
		"target_lang": targetLang,
	})

	s.router.setSession(s.sessionID)
	s.logger.Printf("ingest_ws: session started - %s (%s -> %s)", s.sessionID, sourceLang, targetLang)

	return s.reply(captureReply{Event: "started", SessionID: s.sessionID})
}

func (s *captureSession) handleSegment(seg *captureSegment) {
	if seg == nil || s.sessionID == "" {
		return
	}

	audio, err := base64.StdEncoding.DecodeString(seg.Payload)
	if err != nil {
		s.logger.Printf("ingest_ws: failed to decode audio for segment %d: %v", seg.Sequence, err)
		_ = s.reply(captureReply{Event: "rejected", Sequence: seg.Sequence, Message: "bad payload"})
		return
	}

	capturedAt := time.Now().UTC()
	if seg.CapturedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, seg.CapturedAt); err == nil {
			capturedAt = t
		}
	}

	err = s.pipe.Ingest(pipeline.Segment{
		Sequence:   seg.Sequence,
		Audio:      audio,
		CapturedAt: capturedAt,
		Duration:   time.Duration(seg.DurationMs) * time.Millisecond,
	})
	if err == pipeline.ErrOverflow {
		_ = s.reply(captureReply{Event: "overflow", Sequence: seg.Sequence})
		return
	}
	if err == pipeline.ErrDuplicate {
		_ = s.reply(captureReply{Event: "rejected", Sequence: seg.Sequence, Message: "duplicate sequence"})
		return
	}
	s.segments++
}

func (s *captureSession) handleStop() {
	s.logger.Printf("ingest_ws: session %s stopping after %d segments", s.sessionID, s.segments)

	// Release whatever the sequencer still holds so the display shows the
	// tail of the talk immediately.
	s.pipe.Flush()

	if s.sessionID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.EndSession(ctx, s.sessionID, time.Now().UTC()); err != nil {
			s.logger.Printf("ingest_ws: failed to end session %s: %v", s.sessionID, err)
		}
		s.eventLog.LogAsync(s.sessionID, eventlog.EventSessionEnded, map[string]any{
			"segments": s.segments,
		})
		m := s.pipe.SequencerMetrics()
		s.router.discord.NotifySessionEnded(context.Background(), s.sessionID, m.Released, m.ForceDropped)
	}

	_ = s.reply(captureReply{Event: "stopped", SessionID: s.sessionID})
}

func (s *captureSession) reply(msg captureReply) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn.WriteJSON(msg)
}

func (s *captureSession) cleanup() {
	s.cancel()

	s.connMu.Lock()
	_ = s.conn.Close()
	s.connMu.Unlock()

	s.logger.Printf("ingest_ws: session cleaned up for %s", s.sessionID)
}
