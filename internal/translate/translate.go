// Package translate provides the machine-translation provider used by the
// signaling server's translation gateway.
package translate

import "context"

// Translator turns text into the target language. Input text is opaque
// untrusted data; implementations must never interpolate or execute it.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}
