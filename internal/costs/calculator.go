// Package costs provides cost calculation for API usage.
package costs

import (
	"os"
	"strconv"
)

// Pricing constants (in cents per unit for precision).
// Based on current list prices; all overridable via environment variables.
var (
	// SpeechCentsPerMinute is the cost per minute of Google Cloud Speech
	// synchronous recognition. Default: $0.024/min = 2.4 cents/min
	SpeechCentsPerMinute = getEnvFloat("COST_SPEECH_CENTS_PER_MIN", 2.4)

	// TranslateCentsPerThousandChars is the cost per 1K characters of
	// Google Translate v2. Default: $20/1M chars = 2 cents/1K chars
	TranslateCentsPerThousandChars = getEnvFloat("COST_TRANSLATE_CENTS_PER_1K_CHARS", 2.0)

	// TTSCentsPerThousandChars is the cost per 1K characters for ElevenLabs
	// synthesis on the audio monitor. Default: $0.18/1K chars = 18 cents/1K
	TTSCentsPerThousandChars = getEnvFloat("COST_TTS_CENTS_PER_1K_CHARS", 18.0)
)

// SessionMetrics contains the raw usage metrics from a captioned session.
type SessionMetrics struct {
	AudioSeconds     int // Audio sent to speech recognition
	TranslationChars int // Characters sent to the translator
	TTSChars         int // Characters synthesized for the audio monitor
}

// SessionCosts contains the calculated costs for a session in cents.
type SessionCosts struct {
	SpeechCostCents    int
	TranslateCostCents int
	TTSCostCents       int
	TotalCostCents     int
}

// CalculateSessionCosts computes the costs for a session based on usage.
func CalculateSessionCosts(m SessionMetrics) SessionCosts {
	speechMinutes := float64(m.AudioSeconds) / 60.0
	speechCents := speechMinutes * SpeechCentsPerMinute

	translateCents := (float64(m.TranslationChars) / 1000.0) * TranslateCentsPerThousandChars
	ttsCents := (float64(m.TTSChars) / 1000.0) * TTSCentsPerThousandChars

	// Round to nearest cent (we store as integers)
	costs := SessionCosts{
		SpeechCostCents:    roundToInt(speechCents),
		TranslateCostCents: roundToInt(translateCents),
		TTSCostCents:       roundToInt(ttsCents),
	}
	costs.TotalCostCents = costs.SpeechCostCents + costs.TranslateCostCents + costs.TTSCostCents

	return costs
}

// roundToInt rounds a float to the nearest integer.
func roundToInt(f float64) int {
	if f < 0 {
		return int(f - 0.5)
	}
	return int(f + 0.5)
}

// getEnvFloat returns an environment variable as float64, or the default if not set.
func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
