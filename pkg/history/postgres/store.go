package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/lingualink/pkg/history"
)

var _ history.Recorder = (*Store)(nil)

// Store is a PostgreSQL history recorder. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to the database at dsn, pings it and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Ping checks database connectivity. Used by the readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

// Record implements [history.Recorder]. A zero CreatedAt is stored as the
// current time.
func (s *Store) Record(ctx context.Context, r history.HistoryRecord) error {
	const q = `
		INSERT INTO translations
		    (user_id, speaker_id, meeting_id, source_lang, target_lang, original_text, translated_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		r.UserID,
		r.SpeakerID,
		r.MeetingID,
		r.SourceLang,
		r.TargetLang,
		r.OriginalText,
		r.TranslatedText,
		orNow(r.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("history store: record: %w", err)
	}
	return nil
}

// RecordTranscript implements [history.Recorder].
func (s *Store) RecordTranscript(ctx context.Context, r history.TranscriptRecord) error {
	const q = `
		INSERT INTO transcriptions
		    (meeting_id, speaker_id, speaker_name, text, stt_provider, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.pool.Exec(ctx, q,
		r.MeetingID,
		r.SpeakerID,
		r.SpeakerName,
		r.Text,
		r.STTProvider,
		orNow(r.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("history store: record transcript: %w", err)
	}
	return nil
}

// QueryHistory implements [history.Recorder].
func (s *Store) QueryHistory(ctx context.Context, meetingID string) ([]history.HistoryRecord, error) {
	const q = `
		SELECT user_id, speaker_id, meeting_id, source_lang, target_lang,
		       original_text, translated_text, created_at
		FROM   translations
		WHERE  meeting_id = $1
		ORDER  BY created_at, id`

	rows, err := s.pool.Query(ctx, q, meetingID)
	if err != nil {
		return nil, fmt.Errorf("history store: query: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.HistoryRecord, error) {
		var r history.HistoryRecord
		err := row.Scan(
			&r.UserID,
			&r.SpeakerID,
			&r.MeetingID,
			&r.SourceLang,
			&r.TargetLang,
			&r.OriginalText,
			&r.TranslatedText,
			&r.CreatedAt,
		)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan: %w", err)
	}
	if records == nil {
		records = []history.HistoryRecord{}
	}
	return records, nil
}

// QueryTranscripts implements [history.Recorder].
func (s *Store) QueryTranscripts(ctx context.Context, meetingID string) ([]history.TranscriptRecord, error) {
	const q = `
		SELECT meeting_id, speaker_id, speaker_name, text, stt_provider, timestamp
		FROM   transcriptions
		WHERE  meeting_id = $1
		ORDER  BY timestamp, id`

	rows, err := s.pool.Query(ctx, q, meetingID)
	if err != nil {
		return nil, fmt.Errorf("history store: query transcripts: %w", err)
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (history.TranscriptRecord, error) {
		var r history.TranscriptRecord
		err := row.Scan(&r.MeetingID, &r.SpeakerID, &r.SpeakerName, &r.Text, &r.STTProvider, &r.Timestamp)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("history store: scan transcripts: %w", err)
	}
	if records == nil {
		records = []history.TranscriptRecord{}
	}
	return records, nil
}

func orNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now()
	}
	return t
}
