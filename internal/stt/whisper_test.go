package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWhisperClient_Recognize(t *testing.T) {
	var gotAuth, gotModel, gotLang string
	var gotAudio []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("failed to parse multipart: %v", err)
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file field: %v", err)
		} else {
			gotAudio, _ = io.ReadAll(f)
			f.Close()
		}
		_, _ = w.Write([]byte(`{"text": " hello stage "}`))
	}))
	defer srv.Close()

	c := NewWhisperClient(WhisperConfig{APIKey: "sk-test", BaseURL: srv.URL})

	tr, err := c.Recognize(context.Background(), []byte("wav-bytes"), "ml-IN")
	if err != nil {
		t.Fatalf("Recognize() = %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotModel != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", gotModel)
	}
	// BCP-47 tag is reduced to the bare language code.
	if gotLang != "ml" {
		t.Errorf("language = %q, want ml", gotLang)
	}
	if string(gotAudio) != "wav-bytes" {
		t.Errorf("audio = %q, want wav-bytes", gotAudio)
	}
	if tr.Text != "hello stage" {
		t.Errorf("transcript = %q, want trimmed text", tr.Text)
	}
}

func TestBaseLanguage(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"ml-IN", "ml"},
		{"ar", "ar"},
		{"zh-Hans-CN", "zh"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := baseLanguage(tt.in); got != tt.want {
			t.Errorf("baseLanguage(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
