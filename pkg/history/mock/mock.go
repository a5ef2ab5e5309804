// Package mock provides an in-memory [history.Recorder] for tests.
//
// The recorder keeps every record it receives and answers QueryHistory from
// them. Set the *Err fields to make the corresponding method fail.
//
// Typical usage:
//
//	rec := &mock.Recorder{}
//	// inject rec into the system under test …
//	if got := len(rec.Records()); got != 1 {
//	    t.Errorf("expected 1 record, got %d", got)
//	}
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/MrWong99/lingualink/pkg/history"
)

var _ history.Recorder = (*Recorder)(nil)

// Recorder is a mock implementation of [history.Recorder].
type Recorder struct {
	mu sync.Mutex

	// RecordErr is returned by Record when non-nil. The record is still kept.
	RecordErr error

	// RecordTranscriptErr is returned by RecordTranscript when non-nil.
	RecordTranscriptErr error

	// QueryErr is returned by QueryHistory and QueryTranscripts when non-nil.
	QueryErr error

	records     []history.HistoryRecord
	transcripts []history.TranscriptRecord
	queries     []string
}

// Record implements [history.Recorder].
func (r *Recorder) Record(_ context.Context, rec history.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return r.RecordErr
}

// RecordTranscript implements [history.Recorder].
func (r *Recorder) RecordTranscript(_ context.Context, rec history.TranscriptRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcripts = append(r.transcripts, rec)
	return r.RecordTranscriptErr
}

// QueryHistory implements [history.Recorder]. It returns the stored records
// of meetingID sorted by CreatedAt.
func (r *Recorder) QueryHistory(_ context.Context, meetingID string) ([]history.HistoryRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, meetingID)
	if r.QueryErr != nil {
		return nil, r.QueryErr
	}
	out := []history.HistoryRecord{}
	for _, rec := range r.records {
		if rec.MeetingID == meetingID {
			out = append(out, rec)
		}
	}
	slices.SortStableFunc(out, func(a, b history.HistoryRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out, nil
}

// QueryTranscripts implements [history.Recorder]. It returns the stored
// transcripts of meetingID sorted by Timestamp.
func (r *Recorder) QueryTranscripts(_ context.Context, meetingID string) ([]history.TranscriptRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, meetingID)
	if r.QueryErr != nil {
		return nil, r.QueryErr
	}
	out := []history.TranscriptRecord{}
	for _, rec := range r.transcripts {
		if rec.MeetingID == meetingID {
			out = append(out, rec)
		}
	}
	slices.SortStableFunc(out, func(a, b history.TranscriptRecord) int {
		return a.Timestamp.Compare(b.Timestamp)
	})
	return out, nil
}

// Records returns a copy of every record passed to Record.
func (r *Recorder) Records() []history.HistoryRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.records)
}

// Transcripts returns a copy of every record passed to RecordTranscript.
func (r *Recorder) Transcripts() []history.TranscriptRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.transcripts)
}

// Queries returns the meeting ids passed to QueryHistory and
// QueryTranscripts.
func (r *Recorder) Queries() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.queries)
}
