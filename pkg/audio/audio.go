// Package audio defines the clip and device abstractions used to play
// synthesized speech to the listener.
//
// A [Device] plays one [Clip] at a time and hands back a [Track] whose Done
// channel closes when playback ends. The playback queue never runs two
// tracks at once; devices are not required to mix.
//
// This package lives under pkg/ because device backends for concrete call
// clients are expected to implement [Device].
package audio

import (
	"errors"
	"time"
)

// Encoding names the byte layout of a [Clip].
type Encoding string

const (
	// EncodingPCM is signed 16-bit little-endian interleaved PCM.
	EncodingPCM Encoding = "pcm_s16le"

	// EncodingMP3 is an MPEG-1 Layer III stream.
	EncodingMP3 Encoding = "mp3"

	// EncodingWAV is a RIFF/WAVE container around 16-bit PCM.
	EncodingWAV Encoding = "wav"
)

var (
	// ErrPlaybackBlocked is returned by [Device.Play] when the output refuses
	// to start without a user gesture (browser autoplay policy and similar).
	// The caller should keep the clip and retry after the user re-enables
	// audio.
	ErrPlaybackBlocked = errors.New("audio: playback blocked")

	// ErrDeviceClosed is returned by [Device.Play] after [Device.Close].
	ErrDeviceClosed = errors.New("audio: device closed")
)

// Format describes how the bytes of a [Clip] are laid out.
type Format struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
}

// Clip is one complete synthesized utterance.
type Clip struct {
	Data   []byte
	Format Format
}

// Duration returns the playing time of a PCM clip. It returns zero for
// encodings whose duration cannot be derived from the byte count.
func (c Clip) Duration() time.Duration {
	if c.Format.Encoding != EncodingPCM || c.Format.SampleRate <= 0 || c.Format.Channels <= 0 {
		return 0
	}
	frames := len(c.Data) / (2 * c.Format.Channels)
	return time.Duration(frames) * time.Second / time.Duration(c.Format.SampleRate)
}

// Track is a clip being played.
type Track interface {
	// Done is closed when playback ends, either naturally or through Stop.
	Done() <-chan struct{}

	// Err reports why playback ended early. It is only meaningful after
	// Done is closed and is nil for a clip that played to the end or was
	// stopped.
	Err() error

	// Stop ends playback and releases the track. It is safe to call more
	// than once and after Done has closed.
	Stop()
}

// Device is an audio output.
//
// Implementations must be safe for concurrent use.
type Device interface {
	// ID identifies the output. The empty string is reserved for the
	// default device of a [Router].
	ID() string

	// Play starts clip at the given volume (0.0–1.0) and returns without
	// waiting for it to finish.
	Play(clip Clip, volume float64) (Track, error)

	// Close releases the device. Tracks still playing are stopped.
	Close() error
}

// ClampVolume restricts v to the range 0.0–1.0.
func ClampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
