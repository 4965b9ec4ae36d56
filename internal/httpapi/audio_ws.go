package httpapi

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkurian/surtitle/internal/pipeline"
)

// audioFrame carries one chunk of synthesized speech to a listener.
type audioFrame struct {
	Event    string `json:"event"` // "audio" or "mark"
	Sequence int64  `json:"sequence"`
	Payload  string `json:"payload,omitempty"` // Base64 audio
}

// handleAudioWS is the optional audio monitor: it speaks each Ok
// translation through the TTS client and streams the audio to the
// listener. Failed or dropped records are skipped; the captions websocket
// is the surface that renders placeholders.
func (r *Router) handleAudioWS(w http.ResponseWriter, req *http.Request) {
	if r.tts == nil {
		http.Error(w, "audio monitor not configured", http.StatusServiceUnavailable)
		return
	}
	if !r.sessions.Add() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	defer r.sessions.Done()

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("audio_ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := r.pipe.Subscribe()
	defer r.pipe.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(req.Context())
	defer cancel()

	var connMu sync.Mutex
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-sub.Records():
			if !ok {
				return
			}
			if rec.Status != pipeline.StatusOk || rec.Translation == "" {
				continue
			}
			if err := r.speakRecord(ctx, conn, &connMu, rec); err != nil {
				r.logger.Printf("audio_ws: %v", err)
				return
			}
		}
	}
}

// speakRecord synthesizes one translation and forwards the audio chunks.
func (r *Router) speakRecord(ctx context.Context, conn *websocket.Conn, connMu *sync.Mutex, rec pipeline.PipelineRecord) error {
	audioCh, err := r.tts.SynthesizeStream(ctx, rec.Translation)
	if err != nil {
		// TTS trouble should not kill the monitor; log and move on.
		r.logger.Printf("audio_ws: synthesis failed for sequence %d: %v", rec.Sequence, err)
		return nil
	}

	for chunk := range audioCh {
		frame := audioFrame{
			Event:    "audio",
			Sequence: rec.Sequence,
			Payload:  base64.StdEncoding.EncodeToString(chunk),
		}
		connMu.Lock()
		_ = conn.SetWriteDeadline(time.Now().Add(captionWriteTimeout))
		err := conn.WriteJSON(frame)
		connMu.Unlock()
		if err != nil {
			// Drain the synthesis stream before giving up the connection.
			for range audioCh {
			}
			return fmt.Errorf("write failed for sequence %d: %w", rec.Sequence, err)
		}
	}

	connMu.Lock()
	_ = conn.SetWriteDeadline(time.Now().Add(captionWriteTimeout))
	err = conn.WriteJSON(audioFrame{Event: "mark", Sequence: rec.Sequence})
	connMu.Unlock()
	return err
}
