package app

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr      string
	PublicBaseURL string
	DatabaseURL   string
	SentryDSN     string

	// Provider API keys
	GoogleAPIKey     string
	OpenAIAPIKey     string
	ElevenLabsAPIKey string

	// Backend selection: "google" or "whisper" for recognition,
	// "google" or "openai" for translation.
	STTBackend       string
	TranslateBackend string
	WhisperModel     string
	TranslateModel   string

	// Caption languages (BCP-47, e.g. "ml-IN" -> "ar")
	SourceLang string
	TargetLang string

	// Capture format
	SampleRate int

	// Pipeline tuning
	MaxPending       int
	RecognizeWorkers int
	TranslateWorkers int
	RecognizeTimeout time.Duration
	TranslateTimeout time.Duration
	GraceWindow      time.Duration

	// Audio monitor (optional; disabled without an ElevenLabs key)
	TTSVoiceID      string
	TTSModelID      string
	TTSOutputFormat string
	TTSStability    float64
	TTSSimilarity   float64

	// Access control
	IngestKey   string
	OperatorKey string
	JWTSecret   string
	JWTExpiry   time.Duration

	// Operator alerts
	DiscordWebhookURL string

	// Caption history retention
	RecordRetention   time.Duration
	RetentionInterval time.Duration
}

func LoadConfigFromEnv() Config {
	return Config{
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost:8080"),
		DatabaseURL:   getenv("DATABASE_URL", ""),
		SentryDSN:     getenv("SENTRY_DSN", ""),

		GoogleAPIKey:     getenv("GOOGLE_API_KEY", ""),
		OpenAIAPIKey:     getenv("OPENAI_API_KEY", ""),
		ElevenLabsAPIKey: getenv("ELEVENLABS_API_KEY", ""),

		STTBackend:       getenv("STT_BACKEND", "google"),
		TranslateBackend: getenv("TRANSLATE_BACKEND", "google"),
		WhisperModel:     getenv("WHISPER_MODEL", "whisper-1"),
		TranslateModel:   getenv("TRANSLATE_MODEL", "gpt-4o-mini"),

		SourceLang: getenv("SOURCE_LANG", "ml-IN"),
		TargetLang: getenv("TARGET_LANG", "ar"),

		SampleRate: getenvInt("AUDIO_SAMPLE_RATE", 16000),

		MaxPending:       getenvInt("PIPE_MAX_PENDING", 32),
		RecognizeWorkers: getenvInt("PIPE_RECOGNIZE_WORKERS", 4),
		TranslateWorkers: getenvInt("PIPE_TRANSLATE_WORKERS", 4),
		RecognizeTimeout: getenvDuration("PIPE_RECOGNIZE_TIMEOUT", 8*time.Second),
		TranslateTimeout: getenvDuration("PIPE_TRANSLATE_TIMEOUT", 5*time.Second),
		GraceWindow:      getenvDuration("PIPE_GRACE_WINDOW", 12*time.Second),

		TTSVoiceID:      getenv("TTS_VOICE_ID", ""),
		TTSModelID:      getenv("TTS_MODEL_ID", ""),
		TTSOutputFormat: getenv("TTS_OUTPUT_FORMAT", ""),
		TTSStability:    getenvFloat("TTS_STABILITY", -1),
		TTSSimilarity:   getenvFloat("TTS_SIMILARITY", -1),

		IngestKey:   getenv("INGEST_KEY", ""),
		OperatorKey: getenv("OPERATOR_KEY", ""),
		JWTSecret:   os.Getenv("JWT_SECRET"), // Required - no fallback for security
		JWTExpiry:   getenvDuration("JWT_EXPIRY", 24*time.Hour),

		DiscordWebhookURL: getenv("DISCORD_WEBHOOK_URL", ""),

		RecordRetention:   getenvDuration("RECORD_RETENTION", 30*24*time.Hour),
		RetentionInterval: getenvDuration("RETENTION_INTERVAL", time.Hour),
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getenvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getenvDuration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
