package tts

import "context"

// Client defines the interface for text-to-speech providers, used by the
// optional audio monitor that speaks translated captions.
type Client interface {
	// Synthesize converts text to speech and returns the full audio buffer.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// SynthesizeStream converts text to speech and streams audio chunks.
	SynthesizeStream(ctx context.Context, text string) (<-chan []byte, error)
}
