package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	captionWriteTimeout = 5 * time.Second
	captionPingInterval = 30 * time.Second
)

// handleCaptionWS streams released PipelineRecords to one display client.
// Each connection gets its own broadcaster subscription, so a stalled
// projector never slows the stage display next to it.
func (r *Router) handleCaptionWS(w http.ResponseWriter, req *http.Request) {
	if !r.sessions.Add() {
		http.Error(w, "draining", http.StatusServiceUnavailable)
		return
	}
	defer r.sessions.Done()

	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Printf("caption_ws: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	sub := r.pipe.Subscribe()
	defer r.pipe.Unsubscribe(sub)

	r.logger.Printf("caption_ws: display %s connected", sub.ID())

	// Read pump: we expect nothing from displays, but reading surfaces
	// close frames and errors.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(captionPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-done:
			r.logger.Printf("caption_ws: display %s disconnected", sub.ID())
			return

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(captionWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case rec, ok := <-sub.Records():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(captionWriteTimeout))
			if err := conn.WriteJSON(rec); err != nil {
				r.logger.Printf("caption_ws: write failed for display %s: %v", sub.ID(), err)
				return
			}
		}
	}
}
