package httpapi

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dkurian/surtitle/internal/pipeline"
)

// maxSegmentBytes caps one uploaded audio segment (25 MB, matching the
// largest chunk a capture client is expected to produce).
const maxSegmentBytes = 25 << 20

// handleIngestSegment accepts one audio segment per request: either
// multipart/form-data with the audio under "audio", "file" or
// "recordedFile", or raw bytes in the request body. The sequence number
// comes from the "sequence" form field or the X-Sequence header.
func (r *Router) handleIngestSegment(w http.ResponseWriter, req *http.Request) {
	if !r.ingestAuthorized(req) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	if r.sessions.IsDraining() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "draining"})
		return
	}

	req.Body = http.MaxBytesReader(w, req.Body, maxSegmentBytes)

	var audio []byte
	var seqStr, durStr string

	ct := req.Header.Get("Content-Type")
	if len(ct) >= 19 && ct[:19] == "multipart/form-data" {
		if err := req.ParseMultipartForm(maxSegmentBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart body"})
			return
		}
		for _, key := range []string{"audio", "file", "recordedFile"} {
			f, _, err := req.FormFile(key)
			if err != nil {
				continue
			}
			audio, err = io.ReadAll(f)
			f.Close()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read audio"})
				return
			}
			break
		}
		seqStr = req.FormValue("sequence")
		durStr = req.FormValue("durationMs")
	} else {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "failed to read body"})
			return
		}
		audio = body
	}

	if len(audio) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "no_audio",
			"message": "no audio found; send multipart field 'audio' or raw bytes in the body",
		})
		return
	}

	if seqStr == "" {
		seqStr = req.Header.Get("X-Sequence")
	}
	if durStr == "" {
		durStr = req.Header.Get("X-Duration-Ms")
	}
	seq, err := strconv.ParseInt(seqStr, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing or invalid sequence"})
		return
	}
	durMs, _ := strconv.ParseInt(durStr, 10, 64)

	err = r.pipe.Ingest(pipeline.Segment{
		Sequence:   seq,
		Audio:      audio,
		CapturedAt: time.Now().UTC(),
		Duration:   time.Duration(durMs) * time.Millisecond,
	})
	if err == pipeline.ErrOverflow {
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error":    "overflow",
			"sequence": seq,
		})
		return
	}
	if err == pipeline.ErrDuplicate {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":    "duplicate_sequence",
			"sequence": seq,
		})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true, "sequence": seq})
}
