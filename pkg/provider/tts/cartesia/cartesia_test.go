package cartesia

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/lingualink/pkg/audio"
	"github.com/MrWong99/lingualink/pkg/provider/tts"
)

func TestSynthesize(t *testing.T) {
	var got bytesRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tts/bytes" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		headers = r.Header.Clone()
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = w.Write([]byte{1, 0, 2, 0})
	}))
	defer srv.Close()

	p, err := New("secret", WithBaseURL(srv.URL), WithVoice("voice-a"), WithSampleRate(24000))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	clip, err := p.Synthesize(context.Background(), tts.Request{Text: "Bonjour", Lang: "fr-CA"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if clip.Format != (audio.Format{Encoding: audio.EncodingPCM, SampleRate: 24000, Channels: 1}) {
		t.Errorf("format = %+v", clip.Format)
	}
	if len(clip.Data) != 4 {
		t.Errorf("data len = %d, want 4", len(clip.Data))
	}
	if headers.Get("X-API-Key") != "secret" || headers.Get("Cartesia-Version") == "" {
		t.Errorf("headers = %v", headers)
	}
	if got.Transcript != "Bonjour" || got.Voice.ID != "voice-a" || got.Language != "fr" {
		t.Errorf("request = %+v", got)
	}
	if got.OutputFormat.Encoding != "pcm_s16le" || got.OutputFormat.SampleRate != 24000 {
		t.Errorf("output format = %+v", got.OutputFormat)
	}
}

func TestSynthesize_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	p, _ := New("k", WithBaseURL(srv.URL), WithVoice("v"))
	_, err := p.Synthesize(context.Background(), tts.Request{Text: "x"})
	if err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("err = %v, want status error", err)
	}
}

func TestSynthesize_NoVoice(t *testing.T) {
	p, _ := New("k")
	if _, err := p.Synthesize(context.Background(), tts.Request{Text: "x"}); err == nil {
		t.Fatal("expected error without voice")
	}
}

func TestLanguage(t *testing.T) {
	tests := map[string]string{"": "", "auto": "", "en": "en", "pt-BR": "pt", "ZH_hant": "zh"}
	for in, want := range tests {
		if got := language(in); got != want {
			t.Errorf("language(%q) = %q, want %q", in, got, want)
		}
	}
}
