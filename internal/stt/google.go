package stt

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const googleSpeechAPIURL = "https://speech.googleapis.com/v1/speech:recognize"

// GoogleClient implements Recognizer using the Google Cloud Speech
// synchronous recognize endpoint.
type GoogleClient struct {
	apiKey     string
	baseURL    string
	sampleRate int
	httpClient *http.Client
}

// GoogleConfig holds configuration for the Google Speech client.
type GoogleConfig struct {
	APIKey     string
	SampleRate int          // e.g., 16000 for LINEAR16 capture
	BaseURL    string       // override for tests; defaults to the public API
	HTTPClient *http.Client // shared client with connection pooling
}

// NewGoogleClient creates a new Google Speech client.
func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	sampleRate := cfg.SampleRate
	if sampleRate == 0 {
		sampleRate = 16000
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = googleSpeechAPIURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GoogleClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		sampleRate: sampleRate,
		httpClient: httpClient,
	}
}

// recognizeRequest is the Google Speech REST payload.
type recognizeRequest struct {
	Config recognizeConfig `json:"config"`
	Audio  recognizeAudio  `json:"audio"`
}

type recognizeConfig struct {
	Encoding                   string `json:"encoding"`
	SampleRateHertz            int    `json:"sampleRateHertz"`
	LanguageCode               string `json:"languageCode"`
	EnableAutomaticPunctuation bool   `json:"enableAutomaticPunctuation"`
	AudioChannelCount          int    `json:"audioChannelCount"`
}

type recognizeAudio struct {
	Content string `json:"content"` // Base64 LINEAR16 audio
}

type recognizeResponse struct {
	Results []struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"results"`
}

// Recognize transcribes one LINEAR16 mono segment. All results are joined
// into a single transcript; confidence is taken from the first result's top
// alternative.
func (c *GoogleClient) Recognize(ctx context.Context, audio []byte, languageHint string) (Transcript, error) {
	reqBody := recognizeRequest{
		Config: recognizeConfig{
			Encoding:                   "LINEAR16",
			SampleRateHertz:            c.sampleRate,
			LanguageCode:               languageHint,
			EnableAutomaticPunctuation: true,
			AudioChannelCount:          1,
		},
		Audio: recognizeAudio{
			Content: base64.StdEncoding.EncodeToString(audio),
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "?key=" + c.apiKey
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Transcript{}, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return Transcript{}, fmt.Errorf("Google Speech API error: %s - %s", resp.Status, string(respBody))
	}

	var recResp recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&recResp); err != nil {
		return Transcript{}, fmt.Errorf("failed to decode response: %w", err)
	}

	var parts []string
	var confidence float64
	for i, result := range recResp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		parts = append(parts, alt.Transcript)
		if i == 0 {
			confidence = alt.Confidence
		}
	}

	return Transcript{
		Text:       strings.TrimSpace(strings.Join(parts, " ")),
		Confidence: confidence,
	}, nil
}
