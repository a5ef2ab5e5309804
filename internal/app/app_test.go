package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/lingualink/internal/app"
	"github.com/MrWong99/lingualink/internal/config"
	"github.com/MrWong99/lingualink/pkg/audio"
	audiomock "github.com/MrWong99/lingualink/pkg/audio/mock"
	"github.com/MrWong99/lingualink/pkg/caption"
	"github.com/MrWong99/lingualink/pkg/event"
	"github.com/MrWong99/lingualink/pkg/history"
	histmock "github.com/MrWong99/lingualink/pkg/history/mock"
	"github.com/MrWong99/lingualink/pkg/provider/stt"
	sttmock "github.com/MrWong99/lingualink/pkg/provider/stt/mock"
	trmock "github.com/MrWong99/lingualink/pkg/provider/translate/mock"
	ttsmock "github.com/MrWong99/lingualink/pkg/provider/tts/mock"
)

// listenerConfig returns a defaulted listener config translating en → es.
func listenerConfig() *config.Config {
	cfg := &config.Config{
		Session: config.SessionConfig{MeetingID: "m1", LocalUserID: "me", LocalUserName: "Me"},
		Translation: config.TranslationConfig{
			AutoTranslate: true,
			SourceLang:    "en",
			TargetLang:    "es",
		},
	}
	config.ApplyDefaults(cfg)
	return cfg
}

type listener struct {
	app  *app.App
	hub  *event.Hub
	hist *histmock.Recorder
	tr   *trmock.Translator
}

func newListener(t *testing.T, cfg *config.Config, providers *app.Providers, opts ...app.Option) *listener {
	t.Helper()
	l := &listener{
		hub:  event.NewHub(event.DefaultBuffer),
		hist: &histmock.Recorder{},
		tr:   &trmock.Translator{Replies: map[string]string{"Hello": "Hola"}},
	}
	if providers == nil {
		providers = &app.Providers{}
	}
	if providers.Translator == nil {
		providers.Translator = l.tr
	}
	opts = append([]app.Option{
		app.WithHistory(l.hist),
		app.WithChannel(l.hub.Join()),
		app.WithOutputDevice(&audiomock.Device{DeviceID: "default", AutoFinish: true}),
	}, opts...)

	a, err := app.New(context.Background(), cfg, providers, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })
	l.app = a
	return l
}

// run starts the background workers and waits for the pipeline to subscribe
// to the hub.
func (l *listener) run(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.app.RunWorkers(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("RunWorkers = %v, want context.Canceled", err)
		}
	})
	eventually(t, "pipeline subscription", func() bool { return l.hub.Subscribers() >= 1 })
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func post(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, target, nil))
	return rec
}

// publishFinal sends a final caption from alice through the hub.
func publishFinal(t *testing.T, l *listener, id, text string) {
	t.Helper()
	payload, err := caption.Encode(caption.Fragment{
		UtteranceID: id,
		SpeakerID:   "alice",
		SourceLang:  "en",
		Text:        text,
		IsFinal:     true,
		SentAt:      time.Now(),
	})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := l.hub.Join().Publish(context.Background(), payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}

type captionsBody struct {
	Status   string `json:"status"`
	Captions []struct {
		ID             string `json:"id"`
		SpeakerID      string `json:"speakerId"`
		Text           string `json:"text"`
		TranslatedText string `json:"translatedText"`
		IsFinal        bool   `json:"isFinal"`
	} `json:"captions"`
}

func captions(t *testing.T, a *app.App) captionsBody {
	t.Helper()
	rec := get(t, a.Handler(), "/api/captions")
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /api/captions = %d", rec.Code)
	}
	var body captionsBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode captions: %v", err)
	}
	return body
}

// ─── Relay mode ──────────────────────────────────────────────────────────────

func TestNew_RelayModeRoutes(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{Server: config.ServerConfig{Mode: config.ModeRelay}}
	config.ApplyDefaults(cfg)

	a, err := app.New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Pipeline() != nil {
		t.Error("relay mode must not build a pipeline")
	}

	tests := []struct {
		target   string
		wantCode int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusOK},
		{"/metrics", http.StatusOK},
		{"/ws", http.StatusBadRequest},
		{"/api/history?meeting_id=m1", http.StatusNotFound},
		{"/api/transcripts?meeting_id=m1", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.target, func(t *testing.T) {
			if rec := get(t, a.Handler(), tc.target); rec.Code != tc.wantCode {
				t.Errorf("GET %s = %d, want %d", tc.target, rec.Code, tc.wantCode)
			}
		})
	}
}

// ─── HTTP API ────────────────────────────────────────────────────────────────

func TestHistoryEndpoint(t *testing.T) {
	t.Parallel()
	l := newListener(t, listenerConfig(), nil)
	_ = l.hist.Record(context.Background(), history.HistoryRecord{
		MeetingID: "m1", SpeakerID: "alice", OriginalText: "Hello", TranslatedText: "Hola", CreatedAt: time.Now(),
	})

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantLen  int
	}{
		{"missing meeting id", "/api/history", http.StatusBadRequest, -1},
		{"known meeting", "/api/history?meeting_id=m1", http.StatusOK, 1},
		{"unknown meeting", "/api/history?meeting_id=other", http.StatusOK, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, l.app.Handler(), tc.target)
			if rec.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			if tc.wantLen < 0 {
				return
			}
			var records []history.HistoryRecord
			if err := json.NewDecoder(rec.Body).Decode(&records); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(records) != tc.wantLen {
				t.Errorf("records = %d, want %d", len(records), tc.wantLen)
			}
		})
	}
}

func TestHistoryEndpoint_QueryErrorDegradesReadiness(t *testing.T) {
	t.Parallel()
	l := newListener(t, listenerConfig(), nil)
	l.hist.QueryErr = errors.New("db down")

	if rec := get(t, l.app.Handler(), "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("readyz before failure = %d, want 200", rec.Code)
	}
	if rec := get(t, l.app.Handler(), "/api/history?meeting_id=m1"); rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
	if rec := get(t, l.app.Handler(), "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz after failure = %d, want 503", rec.Code)
	}
}

func TestTranscriptsEndpoint(t *testing.T) {
	t.Parallel()
	l := newListener(t, listenerConfig(), nil)
	ctx := context.Background()
	_ = l.hist.RecordTranscript(ctx, history.TranscriptRecord{
		MeetingID: "m1", SpeakerID: "alice", Text: "second", Timestamp: time.Now(),
	})
	_ = l.hist.RecordTranscript(ctx, history.TranscriptRecord{
		MeetingID: "m1", SpeakerID: "bob", Text: "first", Timestamp: time.Now().Add(-time.Minute),
	})

	tests := []struct {
		name      string
		target    string
		wantCode  int
		wantTexts []string
	}{
		{"missing meeting id", "/api/transcripts", http.StatusBadRequest, nil},
		{"known meeting", "/api/transcripts?meeting_id=m1", http.StatusOK, []string{"first", "second"}},
		{"unknown meeting", "/api/transcripts?meeting_id=other", http.StatusOK, []string{}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := get(t, l.app.Handler(), tc.target)
			if rec.Code != tc.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tc.wantCode)
			}
			if tc.wantTexts == nil {
				return
			}
			var records []history.TranscriptRecord
			if err := json.NewDecoder(rec.Body).Decode(&records); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(records) != len(tc.wantTexts) {
				t.Fatalf("records = %d, want %d", len(records), len(tc.wantTexts))
			}
			for i, want := range tc.wantTexts {
				if records[i].Text != want {
					t.Errorf("records[%d].Text = %q, want %q", i, records[i].Text, want)
				}
			}
		})
	}
}

func TestTranscriptsEndpoint_QueryError(t *testing.T) {
	t.Parallel()
	l := newListener(t, listenerConfig(), nil)
	l.hist.QueryErr = errors.New("db down")

	if rec := get(t, l.app.Handler(), "/api/transcripts?meeting_id=m1"); rec.Code != http.StatusInternalServerError {
		t.Errorf("code = %d, want 500", rec.Code)
	}
	if rec := get(t, l.app.Handler(), "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz after failure = %d, want 503", rec.Code)
	}
}

func TestResumeEndpoint_RestartsBlockedPlayback(t *testing.T) {
	t.Parallel()
	cfg := listenerConfig()
	cfg.Playback.Enabled = true
	dev := &audiomock.Device{DeviceID: "default", AutoFinish: true, PlayErr: audio.ErrPlaybackBlocked}
	l := newListener(t, cfg, &app.Providers{TTS: &ttsmock.Provider{}}, app.WithOutputDevice(dev))
	l.run(t)

	publishFinal(t, l, "u1", "Hello")
	eventually(t, "blocked status", func() bool { return captions(t, l.app).Status == "blocked: enable audio" })
	dev.SetPlayErr(nil)

	rec := post(t, l.app.Handler(), "/api/playback/resume")
	if rec.Code != http.StatusOK {
		t.Fatalf("POST /api/playback/resume = %d, want 200", rec.Code)
	}
	eventually(t, "replayed clip", func() bool { return len(dev.Played()) == 2 })
	played := dev.Played()
	if got := string(played[1].Clip.Data); got != "Hola" {
		t.Errorf("replayed clip = %q, want %q", got, "Hola")
	}
	if rec := get(t, l.app.Handler(), "/api/playback/resume"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /api/playback/resume = %d, want 405", rec.Code)
	}
}

func TestCaptionsEndpoint_ShowsTranslatedInboundCaption(t *testing.T) {
	t.Parallel()
	l := newListener(t, listenerConfig(), nil)
	l.run(t)

	publishFinal(t, l, "u1", "Hello")

	eventually(t, "translated caption", func() bool {
		body := captions(t, l.app)
		return len(body.Captions) == 1 && body.Captions[0].TranslatedText == "Hola"
	})
	body := captions(t, l.app)
	if c := body.Captions[0]; c.ID != "u1" || c.SpeakerID != "alice" || c.Text != "Hello" || !c.IsFinal {
		t.Errorf("caption = %+v", c)
	}
	if body.Status == "" {
		t.Error("status should be reported")
	}
}

// ─── Capture ─────────────────────────────────────────────────────────────────

func TestCapture_PublishesLocalSpeech(t *testing.T) {
	t.Parallel()
	sess := &sttmock.Session{
		PartialsCh: make(chan stt.Transcript, 4),
		FinalsCh:   make(chan stt.Transcript, 4),
	}
	rec := &sttmock.Provider{Session: sess}

	cfg := listenerConfig()
	cfg.Capture.Language = "en"
	l := newListener(t, cfg, &app.Providers{STT: rec, STTName: "mock"},
		app.WithAudioInput(bytes.NewReader(make([]byte, 1500))))

	peer := l.hub.Join()
	sub, err := peer.Subscribe(context.Background())
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	l.run(t)

	// 16 kHz mono, 20 ms frames: 640 + 640 + 220 bytes.
	eventually(t, "audio frames", func() bool { return sess.SendAudioCallCount() == 3 })

	sess.FinalsCh <- stt.Transcript{Text: "good morning", IsFinal: true}

	select {
	case payload := <-sub:
		ev, err := caption.Decode(payload)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if ev.SpeakerUserID != "me" || ev.Text != "good morning" || ev.Type != caption.TypeFinal || ev.SourceLang != "en" {
			t.Errorf("published event = %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("local speech was not published")
	}

	eventually(t, "local caption", func() bool {
		body := captions(t, l.app)
		return len(body.Captions) == 1 && body.Captions[0].SpeakerID == "me"
	})

	calls := rec.StartStreamCalls
	if len(calls) != 1 || calls[0].Cfg.SampleRate != 16000 || calls[0].Cfg.Language != "en" {
		t.Errorf("StartStream calls = %+v", calls)
	}
}

// ─── Hot reload ──────────────────────────────────────────────────────────────

func TestApplyConfig(t *testing.T) {
	t.Parallel()
	var level slog.LevelVar
	l := newListener(t, listenerConfig(), nil, app.WithLogLevel(&level))

	next := listenerConfig()
	next.Server.LogLevel = config.LogDebug
	next.Translation.TargetLang = "de"
	next.Server.ListenAddr = ":9999"

	d := l.app.ApplyConfig(next)
	if !d.LogLevelChanged || !d.TranslationChanged {
		t.Errorf("diff = %+v", d)
	}
	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	got := l.app.Config()
	if got.Translation.TargetLang != "de" {
		t.Errorf("target lang = %q, want de", got.Translation.TargetLang)
	}
	if got.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen addr = %q, restart-only fields must keep running values", got.Server.ListenAddr)
	}
}

func TestShutdown_Idempotent(t *testing.T) {
	t.Parallel()
	l := newListener(t, listenerConfig(), nil)
	if err := l.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("first Shutdown: %v", err)
	}
	if err := l.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
}
