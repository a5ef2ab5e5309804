package resilience

import (
	"context"

	"github.com/MrWong99/lingualink/pkg/audio"
	"github.com/MrWong99/lingualink/pkg/provider/tts"
)

var _ tts.Provider = (*TTSFallback)(nil)

// TTSFallback implements [tts.Provider] over a [FallbackGroup]. A fallback
// backend receives the same request; a voice id only meaningful to the
// primary is cleared for the others.
type TTSFallback struct {
	group *FallbackGroup[tts.Provider]
}

// NewTTSFallback returns a fallback provider with primary first.
func NewTTSFallback(primary tts.Provider, primaryName string, cfg FallbackConfig) *TTSFallback {
	if cfg.Kind == "" {
		cfg.Kind = "tts"
	}
	return &TTSFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *TTSFallback) AddFallback(name string, p tts.Provider) { f.group.AddFallback(name, p) }

// Group exposes the underlying group for inspection.
func (f *TTSFallback) Group() *FallbackGroup[tts.Provider] { return f.group }

// Synthesize renders req with the first backend that succeeds.
func (f *TTSFallback) Synthesize(ctx context.Context, req tts.Request) (audio.Clip, error) {
	primary := f.group.entries[0].name
	clip, _, err := Call(ctx, f.group, func(ctx context.Context, name string, p tts.Provider) (audio.Clip, error) {
		r := req
		if name != primary {
			r.Voice = ""
		}
		return p.Synthesize(ctx, r)
	})
	return clip, err
}
