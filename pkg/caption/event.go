// Package caption defines the caption fragment exchanged between call
// participants and its JSON wire form.
//
// A [Fragment] is one partial or final update describing the current
// best-known text of an utterance. Fragments travel over the host session's
// broadcast facility as [Event] values encoded with [Encode] and parsed with
// [Decode]. Text longer than [MaxTextLen] is split into chunks with [Split]
// and put back together on the receiving side by an [Assembler].
package caption

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// SchemaVersion is the only wire schema version accepted by [Event.Validate].
const SchemaVersion = 1

// MaxTextLen is the maximum number of characters carried by a single event.
const MaxTextLen = 4000

// MaxChunks bounds the number of chunks one utterance may be split into.
// Receivers allocate per announced chunk, so larger counts are rejected.
const MaxChunks = 64

// EventType distinguishes interim from final caption events.
type EventType string

const (
	// TypePartial marks an interim recognizer guess that may still change.
	TypePartial EventType = "caption.partial"

	// TypeFinal marks the recognizer's committed text for an utterance.
	TypeFinal EventType = "caption.final"
)

// Validation errors returned by [Event.Validate]. Receivers drop events that
// fail validation without surfacing the error to the rest of the session.
var (
	ErrSchemaVersion = errors.New("caption: unsupported schema version")
	ErrEventType     = errors.New("caption: unknown event type")
	ErrMissingID     = errors.New("caption: missing utterance or speaker id")
	ErrTextTooLong   = errors.New("caption: text exceeds length cap")
	ErrChunkRange    = errors.New("caption: chunk index out of range")
)

// Event is the JSON wire form of a [Fragment].
//
// ChunkIndex and ChunkCount are omitted for unchunked events; a ChunkCount of
// zero or one means the event carries the whole text.
type Event struct {
	SchemaVersion int       `json:"schemaVersion"`
	Type          EventType `json:"type"`
	UtteranceID   string    `json:"utteranceId"`
	SpeakerUserID string    `json:"speakerUserId"`
	SpeakerName   string    `json:"speakerName,omitempty"`
	SourceLang    string    `json:"sourceLang"`
	Text          string    `json:"text"`
	TS            int64     `json:"ts"`
	ChunkIndex    int       `json:"chunkIndex,omitempty"`
	ChunkCount    int       `json:"chunkCount,omitempty"`
}

// Fragment is one partial or final caption update for an utterance.
type Fragment struct {
	UtteranceID string
	SpeakerID   string
	SpeakerName string
	SourceLang  string
	Text        string
	IsFinal     bool

	// SentAt is the publisher's wall-clock time when the fragment was emitted.
	SentAt time.Time

	// ChunkIndex and ChunkCount are set when Text is one piece of a longer
	// payload. ChunkCount <= 1 means the fragment is not chunked.
	ChunkIndex int
	ChunkCount int
}

// Chunked reports whether f is one piece of a multi-part payload.
func (f Fragment) Chunked() bool { return f.ChunkCount > 1 }

// Event converts f into its wire form.
func (f Fragment) Event() Event {
	typ := TypePartial
	if f.IsFinal {
		typ = TypeFinal
	}
	e := Event{
		SchemaVersion: SchemaVersion,
		Type:          typ,
		UtteranceID:   f.UtteranceID,
		SpeakerUserID: f.SpeakerID,
		SpeakerName:   f.SpeakerName,
		SourceLang:    f.SourceLang,
		Text:          f.Text,
		TS:            f.SentAt.UnixMilli(),
	}
	if f.Chunked() {
		e.ChunkIndex = f.ChunkIndex
		e.ChunkCount = f.ChunkCount
	}
	return e
}

// Fragment converts a validated event into a [Fragment].
func (e Event) Fragment() Fragment {
	return Fragment{
		UtteranceID: e.UtteranceID,
		SpeakerID:   e.SpeakerUserID,
		SpeakerName: e.SpeakerName,
		SourceLang:  e.SourceLang,
		Text:        e.Text,
		IsFinal:     e.Type == TypeFinal,
		SentAt:      time.UnixMilli(e.TS),
		ChunkIndex:  e.ChunkIndex,
		ChunkCount:  e.ChunkCount,
	}
}

// Validate checks e against the wire contract. maxLen bounds the number of
// characters in Text; a value <= 0 selects [MaxTextLen].
func (e Event) Validate(maxLen int) error {
	if maxLen <= 0 {
		maxLen = MaxTextLen
	}
	if e.SchemaVersion != SchemaVersion {
		return fmt.Errorf("%w: %d", ErrSchemaVersion, e.SchemaVersion)
	}
	if e.Type != TypePartial && e.Type != TypeFinal {
		return fmt.Errorf("%w: %q", ErrEventType, e.Type)
	}
	if e.UtteranceID == "" || e.SpeakerUserID == "" {
		return ErrMissingID
	}
	if n := utf8.RuneCountInString(e.Text); n > maxLen {
		return fmt.Errorf("%w: %d > %d", ErrTextTooLong, n, maxLen)
	}
	if e.ChunkCount > MaxChunks {
		return fmt.Errorf("%w: chunk count %d > %d", ErrChunkRange, e.ChunkCount, MaxChunks)
	}
	if e.ChunkCount > 1 && (e.ChunkIndex < 0 || e.ChunkIndex >= e.ChunkCount) {
		return fmt.Errorf("%w: %d of %d", ErrChunkRange, e.ChunkIndex, e.ChunkCount)
	}
	return nil
}

// Encode marshals f as a wire event.
func Encode(f Fragment) ([]byte, error) {
	data, err := json.Marshal(f.Event())
	if err != nil {
		return nil, fmt.Errorf("caption: encode: %w", err)
	}
	return data, nil
}

// Decode parses a wire event. It does not validate the result; call
// [Event.Validate] before trusting any field.
func Decode(data []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("caption: decode: %w", err)
	}
	return e, nil
}
