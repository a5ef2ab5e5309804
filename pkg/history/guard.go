package history

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
)

// ErrDegraded is returned by [Guard.Check] while the last store operation
// failed.
var ErrDegraded = errors.New("history: store degraded")

// Guard wraps a [Recorder] and makes writes non-fatal. A failed write is
// logged and swallowed and the guard is marked degraded; the next successful
// operation clears the flag. Query errors are still returned because the
// caller has nothing to fall back to.
//
// Guard implements [Recorder]. All methods are safe for concurrent use.
type Guard struct {
	store    Recorder
	degraded atomic.Bool
}

var _ Recorder = (*Guard)(nil)

// NewGuard creates a new [Guard] wrapping store.
func NewGuard(store Recorder) *Guard {
	return &Guard{store: store}
}

// Record writes r to the underlying store. Errors are logged and swallowed.
func (g *Guard) Record(ctx context.Context, r HistoryRecord) error {
	if err := g.store.Record(ctx, r); err != nil {
		g.degraded.Store(true)
		slog.Warn("history guard: Record failed, swallowing error",
			"meeting_id", r.MeetingID,
			"speaker_id", r.SpeakerID,
			"err", err,
		)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// RecordTranscript writes r to the underlying store. Errors are logged and
// swallowed.
func (g *Guard) RecordTranscript(ctx context.Context, r TranscriptRecord) error {
	if err := g.store.RecordTranscript(ctx, r); err != nil {
		g.degraded.Store(true)
		slog.Warn("history guard: RecordTranscript failed, swallowing error",
			"meeting_id", r.MeetingID,
			"speaker_id", r.SpeakerID,
			"err", err,
		)
		return nil
	}
	g.degraded.Store(false)
	return nil
}

// QueryHistory delegates to the underlying store and tracks its health.
func (g *Guard) QueryHistory(ctx context.Context, meetingID string) ([]HistoryRecord, error) {
	recs, err := g.store.QueryHistory(ctx, meetingID)
	if err != nil {
		g.degraded.Store(true)
		return nil, err
	}
	g.degraded.Store(false)
	return recs, nil
}

// QueryTranscripts delegates to the underlying store and tracks its health.
func (g *Guard) QueryTranscripts(ctx context.Context, meetingID string) ([]TranscriptRecord, error) {
	recs, err := g.store.QueryTranscripts(ctx, meetingID)
	if err != nil {
		g.degraded.Store(true)
		return nil, err
	}
	g.degraded.Store(false)
	return recs, nil
}

// IsDegraded reports whether the most recent store operation failed.
func (g *Guard) IsDegraded() bool {
	return g.degraded.Load()
}

// Check is a readiness check: it fails with [ErrDegraded] while degraded.
func (g *Guard) Check(context.Context) error {
	if g.IsDegraded() {
		return ErrDegraded
	}
	return nil
}
