package stt

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGoogleClient_Recognize(t *testing.T) {
	var gotBody recognizeRequest
	var gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"results": []map[string]any{
				{"alternatives": []map[string]any{{"transcript": "നമസ്കാരം", "confidence": 0.91}}},
				{"alternatives": []map[string]any{{"transcript": "എല്ലാവർക്കും", "confidence": 0.85}}},
			},
		})
	}))
	defer srv.Close()

	c := NewGoogleClient(GoogleConfig{APIKey: "test-key", BaseURL: srv.URL})

	audio := []byte{0x01, 0x02, 0x03}
	tr, err := c.Recognize(context.Background(), audio, "ml-IN")
	if err != nil {
		t.Fatalf("Recognize() = %v", err)
	}

	if gotKey != "test-key" {
		t.Errorf("key = %q, want %q", gotKey, "test-key")
	}
	if gotBody.Config.Encoding != "LINEAR16" {
		t.Errorf("encoding = %q, want LINEAR16", gotBody.Config.Encoding)
	}
	if gotBody.Config.SampleRateHertz != 16000 {
		t.Errorf("sampleRateHertz = %d, want 16000", gotBody.Config.SampleRateHertz)
	}
	if gotBody.Config.LanguageCode != "ml-IN" {
		t.Errorf("languageCode = %q, want ml-IN", gotBody.Config.LanguageCode)
	}
	if !gotBody.Config.EnableAutomaticPunctuation {
		t.Error("enableAutomaticPunctuation should be set")
	}
	if want := base64.StdEncoding.EncodeToString(audio); gotBody.Audio.Content != want {
		t.Errorf("audio content = %q, want %q", gotBody.Audio.Content, want)
	}

	// Multiple results are joined into one transcript.
	if tr.Text != "നമസ്കാരം എല്ലാവർക്കും" {
		t.Errorf("transcript = %q", tr.Text)
	}
	if tr.Confidence != 0.91 {
		t.Errorf("confidence = %v, want 0.91 (first result)", tr.Confidence)
	}
}

func TestGoogleClient_RecognizeEmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The API returns an empty object for segments with no speech.
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewGoogleClient(GoogleConfig{APIKey: "k", BaseURL: srv.URL})
	tr, err := c.Recognize(context.Background(), []byte("quiet"), "ml-IN")
	if err != nil {
		t.Fatalf("Recognize() = %v", err)
	}
	if tr.Text != "" {
		t.Errorf("transcript = %q, want empty", tr.Text)
	}
}

func TestGoogleClient_RecognizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "API key not valid"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewGoogleClient(GoogleConfig{APIKey: "bad", BaseURL: srv.URL})
	if _, err := c.Recognize(context.Background(), []byte("x"), "ml-IN"); err == nil {
		t.Error("Recognize() should fail on a non-200 response")
	}
}
