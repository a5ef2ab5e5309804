// Package postgres provides a PostgreSQL-backed [history.Recorder].
//
// Two tables are used: translations holds translated final utterances and
// transcriptions holds finals stored without a translation. [Migrate]
// creates both.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn)
//	if err != nil { … }
//	defer store.Close()
//
//	_ = store.Record(ctx, rec)
//	records, _ := store.QueryHistory(ctx, meetingID)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ─────────────────────────────────────────────────────────────────────────────
// DDL
// ─────────────────────────────────────────────────────────────────────────────

const ddlTranslations = `
CREATE TABLE IF NOT EXISTS translations (
    id               BIGSERIAL    PRIMARY KEY,
    user_id          TEXT         NOT NULL DEFAULT '',
    speaker_id       TEXT         NOT NULL DEFAULT '',
    meeting_id       TEXT         NOT NULL,
    source_lang      TEXT         NOT NULL DEFAULT '',
    target_lang      TEXT         NOT NULL DEFAULT '',
    original_text    TEXT         NOT NULL,
    translated_text  TEXT         NOT NULL,
    created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_translations_meeting_created
    ON translations (meeting_id, created_at);
`

const ddlTranscriptions = `
CREATE TABLE IF NOT EXISTS transcriptions (
    id            BIGSERIAL    PRIMARY KEY,
    meeting_id    TEXT         NOT NULL,
    speaker_id    TEXT         NOT NULL DEFAULT '',
    speaker_name  TEXT         NOT NULL DEFAULT '',
    text          TEXT         NOT NULL,
    stt_provider  TEXT         NOT NULL DEFAULT '',
    timestamp     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_transcriptions_meeting_timestamp
    ON transcriptions (meeting_id, timestamp);
`

// Migrate creates the history tables if they do not exist. It is idempotent
// and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range []string{ddlTranslations, ddlTranscriptions} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
