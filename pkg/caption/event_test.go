package caption_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/lingualink/pkg/caption"
)

func validEvent() caption.Event {
	return caption.Event{
		SchemaVersion: caption.SchemaVersion,
		Type:          caption.TypePartial,
		UtteranceID:   "u1",
		SpeakerUserID: "alice",
		SourceLang:    "en",
		Text:          "hello",
		TS:            1000,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*caption.Event)
		want   error
	}{
		{name: "valid partial", mutate: func(*caption.Event) {}},
		{name: "valid final", mutate: func(e *caption.Event) { e.Type = caption.TypeFinal }},
		{name: "wrong schema", mutate: func(e *caption.Event) { e.SchemaVersion = 2 }, want: caption.ErrSchemaVersion},
		{name: "zero schema", mutate: func(e *caption.Event) { e.SchemaVersion = 0 }, want: caption.ErrSchemaVersion},
		{name: "unknown type", mutate: func(e *caption.Event) { e.Type = "caption.deleted" }, want: caption.ErrEventType},
		{name: "missing utterance", mutate: func(e *caption.Event) { e.UtteranceID = "" }, want: caption.ErrMissingID},
		{name: "missing speaker", mutate: func(e *caption.Event) { e.SpeakerUserID = "" }, want: caption.ErrMissingID},
		{name: "text at cap", mutate: func(e *caption.Event) { e.Text = strings.Repeat("a", caption.MaxTextLen) }},
		{name: "text over cap", mutate: func(e *caption.Event) { e.Text = strings.Repeat("a", 5000) }, want: caption.ErrTextTooLong},
		{name: "multibyte counted as runes", mutate: func(e *caption.Event) { e.Text = strings.Repeat("ü", caption.MaxTextLen) }},
		{name: "chunk index too large", mutate: func(e *caption.Event) { e.ChunkIndex, e.ChunkCount = 3, 3 }, want: caption.ErrChunkRange},
		{name: "chunk count too large", mutate: func(e *caption.Event) { e.ChunkIndex, e.ChunkCount = 0, 50_000_000 }, want: caption.ErrChunkRange},
		{name: "chunk count at limit", mutate: func(e *caption.Event) { e.ChunkIndex, e.ChunkCount = caption.MaxChunks-1, caption.MaxChunks }},
		{name: "chunk index negative", mutate: func(e *caption.Event) { e.ChunkIndex, e.ChunkCount = -1, 2 }, want: caption.ErrChunkRange},
		{name: "chunk in range", mutate: func(e *caption.Event) { e.ChunkIndex, e.ChunkCount = 2, 3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := validEvent()
			tt.mutate(&e)
			err := e.Validate(0)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodeDecode_WireShape(t *testing.T) {
	t.Parallel()

	f := caption.Fragment{
		UtteranceID: "u1",
		SpeakerID:   "alice",
		SpeakerName: "Alice",
		SourceLang:  "en",
		Text:        "Hello world",
		IsFinal:     true,
		SentAt:      time.UnixMilli(1700000000123),
	}
	data, err := caption.Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	for _, want := range []string{
		`"schemaVersion":1`,
		`"type":"caption.final"`,
		`"utteranceId":"u1"`,
		`"speakerUserId":"alice"`,
		`"ts":1700000000123`,
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("encoded event %s missing %s", data, want)
		}
	}
	if strings.Contains(string(data), "chunkCount") {
		t.Errorf("unchunked event should omit chunk fields: %s", data)
	}

	e, err := caption.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := e.Fragment()
	if got.Text != f.Text || !got.IsFinal || !got.SentAt.Equal(f.SentAt) || got.SpeakerName != "Alice" {
		t.Errorf("round trip = %+v, want %+v", got, f)
	}
}

func TestDecode_Malformed(t *testing.T) {
	t.Parallel()
	if _, err := caption.Decode([]byte("{not json")); err == nil {
		t.Fatal("Decode() error = nil, want error")
	}
}
