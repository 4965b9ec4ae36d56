package stt

import "context"

// Transcript is the result of recognizing one audio segment.
type Transcript struct {
	Text       string  // The transcribed text
	Confidence float64 // Confidence score (0-1)
}

// Recognizer defines the interface for speech-to-text providers. One call
// per audio segment; the caller enforces timeouts via ctx.
type Recognizer interface {
	// Recognize transcribes a finite audio buffer. languageHint is a BCP-47
	// code such as "ml-IN"; providers that auto-detect may ignore it.
	Recognize(ctx context.Context, audio []byte, languageHint string) (Transcript, error)
}
