// Package stt defines the Provider interface for speech-to-text backends
// that feed the local fragment publisher.
//
// An STT provider wraps a real-time transcription service and exposes a
// uniform streaming interface. Once opened, a session accepts raw PCM
// audio and emits two streams of [Transcript] values: low-latency partials
// that become caption.partial events, and finals that close an utterance.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"time"
)

// Transcript is one recognition result.
type Transcript struct {
	// Text is the best-known text of the current utterance.
	Text string

	// IsFinal marks an authoritative result that ends the utterance.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). Zero when the
	// provider does not report one.
	Confidence float64

	// Language is the detected BCP-47 language, when the provider reports it.
	Language string

	// Start is the offset of the utterance from the start of the stream.
	Start time.Duration
}

// StreamConfig describes the audio format and language of a new session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// Channels is the number of interleaved channels. Most providers want 1.
	Channels int

	// Language is the BCP-47 tag to recognize. Empty selects the provider
	// default.
	Language string
}

// SessionHandle is an open streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of 16-bit PCM matching the StreamConfig.
	// Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits final transcripts. Closed when the session ends.
	Finals() <-chan Transcript

	// Close flushes pending audio and releases the session. After Close
	// returns both channels are closed. Calling Close more than once is
	// safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a session ready to accept audio immediately.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
