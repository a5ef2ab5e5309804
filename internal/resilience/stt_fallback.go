package resilience

import (
	"context"

	"github.com/MrWong99/lingualink/pkg/provider/stt"
)

var _ stt.Provider = (*STTFallback)(nil)

// STTFallback implements [stt.Provider] over a [FallbackGroup]. Only stream
// setup fails over; once a session is open, its errors belong to the caller.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// NewSTTFallback returns a fallback provider with primary first.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Kind == "" {
		cfg.Kind = "stt"
	}
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *STTFallback) AddFallback(name string, p stt.Provider) { f.group.AddFallback(name, p) }

// StartStream opens a session on the first backend that accepts it.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	sess, _, err := Call(ctx, f.group, func(ctx context.Context, _ string, p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
	return sess, err
}
