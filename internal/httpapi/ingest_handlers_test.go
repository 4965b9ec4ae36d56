package httpapi

import (
	"bytes"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkurian/surtitle/internal/pipeline"
)

func ingestTestRouter(maxPending int) *Router {
	logger := log.New(io.Discard, "", 0)
	return &Router{
		logger:   logger,
		sessions: NewSessionRegistry(),
		pipe: pipeline.NewCoordinator(pipeline.Config{
			MaxPending:  maxPending,
			GraceWindow: time.Minute,
		}, nil, nil, pipeline.Hooks{}, logger),
	}
}

func multipartSegment(t *testing.T, field, sequence string, audio []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "chunk.wav")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(audio); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if sequence != "" {
		if err := mw.WriteField("sequence", sequence); err != nil {
			t.Fatalf("write sequence: %v", err)
		}
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestHandleIngestSegment_Multipart(t *testing.T) {
	// The capture clients in the field use different field names for the
	// audio; all of them must be accepted.
	for _, field := range []string{"audio", "file", "recordedFile"} {
		t.Run(field, func(t *testing.T) {
			r := ingestTestRouter(8)
			body, ct := multipartSegment(t, field, "7", []byte("pcm"))

			req := httptest.NewRequest(http.MethodPost, "/segments", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			r.handleIngestSegment(rec, req)

			if rec.Code != http.StatusAccepted {
				t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
			}
		})
	}
}

func TestHandleIngestSegment_RawBody(t *testing.T) {
	r := ingestTestRouter(8)

	req := httptest.NewRequest(http.MethodPost, "/segments", strings.NewReader("raw-pcm-bytes"))
	req.Header.Set("X-Sequence", "3")
	rec := httptest.NewRecorder()
	r.handleIngestSegment(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusAccepted, rec.Body.String())
	}
	if r.pipe.Queue().Unresolved() != 1 {
		t.Errorf("Unresolved() = %d, want 1", r.pipe.Queue().Unresolved())
	}
}

func TestHandleIngestSegment_MissingSequence(t *testing.T) {
	r := ingestTestRouter(8)

	req := httptest.NewRequest(http.MethodPost, "/segments", strings.NewReader("raw-pcm-bytes"))
	rec := httptest.NewRecorder()
	r.handleIngestSegment(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleIngestSegment_NoAudio(t *testing.T) {
	r := ingestTestRouter(8)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	_ = mw.WriteField("sequence", "1")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/segments", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	r.handleIngestSegment(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if !strings.Contains(rec.Body.String(), "no_audio") {
		t.Errorf("body = %q, want no_audio error", rec.Body.String())
	}
}

func TestHandleIngestSegment_Overflow(t *testing.T) {
	r := ingestTestRouter(1)

	post := func(seq string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/segments", strings.NewReader("pcm"))
		req.Header.Set("X-Sequence", seq)
		rec := httptest.NewRecorder()
		r.handleIngestSegment(rec, req)
		return rec
	}

	if rec := post("0"); rec.Code != http.StatusAccepted {
		t.Fatalf("first segment: status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	if rec := post("1"); rec.Code != http.StatusTooManyRequests {
		t.Errorf("second segment: status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
}

func TestHandleIngestSegment_IngestKey(t *testing.T) {
	r := ingestTestRouter(8)
	r.cfg.IngestKey = "capture-key"

	req := httptest.NewRequest(http.MethodPost, "/segments", strings.NewReader("pcm"))
	req.Header.Set("X-Sequence", "0")
	rec := httptest.NewRecorder()
	r.handleIngestSegment(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("without key: status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	req = httptest.NewRequest(http.MethodPost, "/segments", strings.NewReader("pcm"))
	req.Header.Set("X-Sequence", "0")
	req.Header.Set("X-Ingest-Key", "capture-key")
	rec = httptest.NewRecorder()
	r.handleIngestSegment(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Errorf("with key: status = %d, want %d", rec.Code, http.StatusAccepted)
	}
}

func TestHandleIngestSegment_RejectsDuringDrain(t *testing.T) {
	r := ingestTestRouter(8)
	r.sessions.StartDraining()

	req := httptest.NewRequest(http.MethodPost, "/segments", strings.NewReader("pcm"))
	req.Header.Set("X-Sequence", "0")
	rec := httptest.NewRecorder()
	r.handleIngestSegment(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

func TestHandleIngestSegment_DuplicateSequence(t *testing.T) {
	r := ingestTestRouter(8)

	post := func(seq string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/segments", strings.NewReader("pcm"))
		req.Header.Set("X-Sequence", seq)
		rec := httptest.NewRecorder()
		r.handleIngestSegment(rec, req)
		return rec
	}

	if rec := post("0"); rec.Code != http.StatusAccepted {
		t.Fatalf("first upload: status = %d, want %d", rec.Code, http.StatusAccepted)
	}
	rec := post("0")
	if rec.Code != http.StatusConflict {
		t.Errorf("repeated upload: status = %d, want %d", rec.Code, http.StatusConflict)
	}
	if !strings.Contains(rec.Body.String(), "duplicate_sequence") {
		t.Errorf("body = %q, want duplicate_sequence error", rec.Body.String())
	}
	// The repeated upload must not consume a backlog slot.
	if r.pipe.Queue().Unresolved() != 1 {
		t.Errorf("Unresolved() = %d, want 1", r.pipe.Queue().Unresolved())
	}
}
