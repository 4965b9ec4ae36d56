package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
)

const whisperAPIURL = "https://api.openai.com/v1/audio/transcriptions"

// WhisperClient implements Recognizer using OpenAI's audio transcription
// endpoint. Alternative backend for deployments without a Google project.
type WhisperClient struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

// WhisperConfig holds configuration for the Whisper client.
type WhisperConfig struct {
	APIKey     string
	Model      string // e.g., "whisper-1"
	BaseURL    string
	HTTPClient *http.Client
}

// NewWhisperClient creates a new Whisper transcription client.
func NewWhisperClient(cfg WhisperConfig) *WhisperClient {
	model := cfg.Model
	if model == "" {
		model = "whisper-1"
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = whisperAPIURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &WhisperClient{
		apiKey:     cfg.APIKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type whisperResponse struct {
	Text string `json:"text"`
}

// Recognize sends one WAV segment as a multipart upload. Whisper does not
// report per-result confidence, so Confidence is always 0.
func (c *WhisperClient) Recognize(ctx context.Context, audio []byte, languageHint string) (Transcript, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := mw.WriteField("model", c.model); err != nil {
		return Transcript{}, fmt.Errorf("failed to build form: %w", err)
	}
	// Whisper takes a bare ISO 639-1 code, not a full BCP-47 tag.
	if lang := baseLanguage(languageHint); lang != "" {
		if err := mw.WriteField("language", lang); err != nil {
			return Transcript{}, fmt.Errorf("failed to build form: %w", err)
		}
	}

	fw, err := mw.CreateFormFile("file", "segment.wav")
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := fw.Write(audio); err != nil {
		return Transcript{}, fmt.Errorf("failed to build form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return Transcript{}, fmt.Errorf("failed to build form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, &body)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Transcript{}, fmt.Errorf("OpenAI API error: %s - %s", resp.Status, string(respBody))
	}

	var wr whisperResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return Transcript{}, fmt.Errorf("failed to decode response: %w", err)
	}

	return Transcript{Text: strings.TrimSpace(wr.Text)}, nil
}

// baseLanguage reduces "ml-IN" to "ml".
func baseLanguage(tag string) string {
	if i := strings.IndexByte(tag, '-'); i > 0 {
		return tag[:i]
	}
	return tag
}
