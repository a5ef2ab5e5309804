package history_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/lingualink/pkg/history"
	histmock "github.com/MrWong99/lingualink/pkg/history/mock"
)

func TestGuard_Record(t *testing.T) {
	t.Parallel()

	t.Run("successful write", func(t *testing.T) {
		t.Parallel()
		store := &histmock.Recorder{}
		g := history.NewGuard(store)

		if err := g.Record(context.Background(), history.HistoryRecord{MeetingID: "m1"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if g.IsDegraded() {
			t.Error("should not be degraded after successful write")
		}
		if n := len(store.Records()); n != 1 {
			t.Errorf("records = %d, want 1", n)
		}
	})

	t.Run("write failure is swallowed", func(t *testing.T) {
		t.Parallel()
		g := history.NewGuard(&histmock.Recorder{RecordErr: errors.New("disk full")})

		if err := g.Record(context.Background(), history.HistoryRecord{}); err != nil {
			t.Fatalf("expected nil error (swallowed), got %v", err)
		}
		if !g.IsDegraded() {
			t.Error("should be degraded after failed write")
		}
		if err := g.Check(context.Background()); !errors.Is(err, history.ErrDegraded) {
			t.Errorf("Check = %v, want ErrDegraded", err)
		}
	})

	t.Run("recovers after successful write", func(t *testing.T) {
		t.Parallel()
		store := &histmock.Recorder{RecordTranscriptErr: errors.New("temporary failure")}
		g := history.NewGuard(store)

		_ = g.RecordTranscript(context.Background(), history.TranscriptRecord{Text: "a"})
		if !g.IsDegraded() {
			t.Fatal("should be degraded")
		}

		_ = g.Record(context.Background(), history.HistoryRecord{})
		if g.IsDegraded() {
			t.Error("should have recovered from degraded state")
		}
		if err := g.Check(context.Background()); err != nil {
			t.Errorf("Check = %v, want nil", err)
		}
	})
}

func TestGuard_QueryHistoryPropagatesError(t *testing.T) {
	t.Parallel()
	want := errors.New("db down")
	g := history.NewGuard(&histmock.Recorder{QueryErr: want})

	if _, err := g.QueryHistory(context.Background(), "m1"); !errors.Is(err, want) {
		t.Fatalf("QueryHistory error = %v, want %v", err, want)
	}
	if !g.IsDegraded() {
		t.Error("failed query should mark the guard degraded")
	}
}

func TestGuard_QueryTranscripts(t *testing.T) {
	t.Parallel()
	rec := &histmock.Recorder{}
	g := history.NewGuard(rec)
	ctx := context.Background()
	_ = rec.RecordTranscript(ctx, history.TranscriptRecord{MeetingID: "m1", Text: "hola"})
	_ = rec.RecordTranscript(ctx, history.TranscriptRecord{MeetingID: "m2", Text: "other"})

	got, err := g.QueryTranscripts(ctx, "m1")
	if err != nil {
		t.Fatalf("QueryTranscripts: %v", err)
	}
	if len(got) != 1 || got[0].Text != "hola" {
		t.Fatalf("QueryTranscripts = %+v, want the single m1 transcript", got)
	}

	rec.QueryErr = errors.New("db down")
	if _, err := g.QueryTranscripts(ctx, "m1"); !errors.Is(err, rec.QueryErr) {
		t.Fatalf("QueryTranscripts error = %v, want %v", err, rec.QueryErr)
	}
	if err := g.Check(ctx); !errors.Is(err, history.ErrDegraded) {
		t.Errorf("Check = %v, want ErrDegraded", err)
	}
}
