package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const googleTranslateAPIURL = "https://translation.googleapis.com/language/translate/v2"

// GoogleClient implements Translator using the Google Translate v2 REST API.
type GoogleClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// GoogleConfig holds configuration for the Google Translate client.
type GoogleConfig struct {
	APIKey     string
	BaseURL    string       // override for tests; defaults to the public API
	HTTPClient *http.Client // shared client with connection pooling
}

// NewGoogleClient creates a new Google Translate client.
func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = googleTranslateAPIURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &GoogleClient{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
	Format string `json:"format"`
}

type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText string `json:"translatedText"`
		} `json:"translations"`
	} `json:"data"`
}

// Translate converts one transcript to the target language.
func (c *GoogleClient) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	reqBody := translateRequest{
		Q:      text,
		Source: baseLanguage(sourceLang),
		Target: targetLang,
		Format: "text",
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + "?key=" + c.apiKey
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Google Translate API error: %s - %s", resp.Status, string(respBody))
	}

	var trResp translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&trResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	if len(trResp.Data.Translations) == 0 {
		return "", fmt.Errorf("no translations in response")
	}
	return trResp.Data.Translations[0].TranslatedText, nil
}

// baseLanguage reduces a BCP-47 tag like "ml-IN" to the bare "ml" code the
// v2 endpoint expects.
func baseLanguage(tag string) string {
	if i := strings.IndexByte(tag, '-'); i > 0 {
		return tag[:i]
	}
	return tag
}
