package translate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestOpenAIClient_Translate(t *testing.T) {
	var gotAuth string
	var gotBody chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices": [{"message": {"content": " مرحبا \n"}}]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})

	out, err := c.Translate(context.Background(), "hello", "ml-IN", "ar")
	if err != nil {
		t.Fatalf("Translate() = %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want Bearer sk-test", gotAuth)
	}
	if gotBody.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want gpt-4o-mini", gotBody.Model)
	}
	if len(gotBody.Messages) != 2 {
		t.Fatalf("got %d messages, want 2 (system + user)", len(gotBody.Messages))
	}
	if gotBody.Messages[0].Role != "system" || !strings.Contains(gotBody.Messages[0].Content, "ml-IN") {
		t.Errorf("system message = %+v, want role system mentioning the source language", gotBody.Messages[0])
	}
	if gotBody.Messages[1].Role != "user" || gotBody.Messages[1].Content != "hello" {
		t.Errorf("user message = %+v", gotBody.Messages[1])
	}
	if out != "مرحبا" {
		t.Errorf("translation = %q, want trimmed content", out)
	}
}

func TestOpenAIClient_TranslateNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(OpenAIConfig{APIKey: "sk", BaseURL: srv.URL})
	if _, err := c.Translate(context.Background(), "x", "ml", "ar"); err == nil {
		t.Error("Translate() should fail when the response has no choices")
	}
}
