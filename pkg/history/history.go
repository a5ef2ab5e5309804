// Package history defines the persistence collaborator of the caption
// pipeline: a write-mostly log of translated utterances and plain
// transcripts, queryable per meeting.
//
// Writes are fire-and-forget from the pipeline's point of view. Callers run
// them on their own goroutine, log failures and never wait for them on the
// event loop. Every implementation must be safe for concurrent use.
package history

import (
	"context"
	"time"
)

// HistoryRecord is one successfully translated final utterance.
type HistoryRecord struct {
	UserID         string    `json:"userId"`
	SpeakerID      string    `json:"speakerId"`
	MeetingID      string    `json:"meetingId"`
	SourceLang     string    `json:"sourceLang"`
	TargetLang     string    `json:"targetLang"`
	OriginalText   string    `json:"originalText"`
	TranslatedText string    `json:"translatedText"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TranscriptRecord is one final utterance stored without a translation.
type TranscriptRecord struct {
	MeetingID   string    `json:"meetingId"`
	SpeakerID   string    `json:"speakerId"`
	SpeakerName string    `json:"speakerName"`
	Text        string    `json:"text"`
	STTProvider string    `json:"sttProvider"`
	Timestamp   time.Time `json:"timestamp"`
}

// Recorder persists caption history.
type Recorder interface {
	// Record stores a translated utterance.
	Record(ctx context.Context, r HistoryRecord) error

	// RecordTranscript stores an untranslated final utterance.
	RecordTranscript(ctx context.Context, r TranscriptRecord) error

	// QueryHistory returns the translations of meetingID ordered by
	// CreatedAt ascending.
	QueryHistory(ctx context.Context, meetingID string) ([]HistoryRecord, error)

	// QueryTranscripts returns the untranslated finals of meetingID ordered
	// by Timestamp ascending.
	QueryTranscripts(ctx context.Context, meetingID string) ([]TranscriptRecord, error)
}

// Nop is a [Recorder] that stores nothing.
type Nop struct{}

var _ Recorder = Nop{}

// Record implements [Recorder].
func (Nop) Record(context.Context, HistoryRecord) error { return nil }

// RecordTranscript implements [Recorder].
func (Nop) RecordTranscript(context.Context, TranscriptRecord) error { return nil }

// QueryHistory implements [Recorder]. It always returns an empty slice.
func (Nop) QueryHistory(context.Context, string) ([]HistoryRecord, error) {
	return []HistoryRecord{}, nil
}

// QueryTranscripts implements [Recorder]. It always returns an empty slice.
func (Nop) QueryTranscripts(context.Context, string) ([]TranscriptRecord, error) {
	return []TranscriptRecord{}, nil
}
