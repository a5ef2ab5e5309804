// Package tts defines the Provider interface for text-to-speech backends.
//
// A provider turns one finished utterance into one complete [audio.Clip].
// Playback is strictly sequential, so streaming partial audio buys nothing
// and every provider collects its output before returning.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/MrWong99/lingualink/pkg/audio"
)

// Request is one synthesis job.
type Request struct {
	// Text is the text to speak.
	Text string

	// Lang is the BCP-47 language of Text. Providers that support a
	// language hint pass it on; others ignore it.
	Lang string

	// Voice is the provider-specific voice id. Empty selects the
	// provider's configured default.
	Voice string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders req into a single clip. It returns an error if the
	// backend cannot be reached, rejects the request, or returns no audio.
	Synthesize(ctx context.Context, req Request) (audio.Clip, error)
}

// Voice describes one voice offered by a provider.
type Voice struct {
	ID       string
	Name     string
	Provider string

	// Labels holds provider-specific attributes (gender, accent, category).
	Labels map[string]string
}

// VoiceLister is implemented by providers that can enumerate their voices.
type VoiceLister interface {
	ListVoices(ctx context.Context) ([]Voice, error)
}

// Func adapts an ordinary function to [Provider].
type Func func(ctx context.Context, req Request) (audio.Clip, error)

// Synthesize calls f.
func (f Func) Synthesize(ctx context.Context, req Request) (audio.Clip, error) {
	return f(ctx, req)
}
