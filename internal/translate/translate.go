package translate

import "context"

// Translator defines the interface for machine-translation providers. One
// call per transcript; the caller enforces timeouts via ctx.
type Translator interface {
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}
