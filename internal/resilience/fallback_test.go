package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/lingualink/pkg/provider/stt"
	sttmock "github.com/MrWong99/lingualink/pkg/provider/stt/mock"
	"github.com/MrWong99/lingualink/pkg/provider/translate"
	trmock "github.com/MrWong99/lingualink/pkg/provider/translate/mock"
	"github.com/MrWong99/lingualink/pkg/provider/tts"
	ttsmock "github.com/MrWong99/lingualink/pkg/provider/tts/mock"
)

func stringGroup(maxFailures int) *FallbackGroup[string] {
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: maxFailures, ResetTimeout: time.Hour},
		Kind:           "test",
	})
	fg.AddFallback("secondary", "secondary")
	return fg
}

func TestCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		failing   []string
		wantName  string
		wantErr   error
		wantTried []string
	}{
		{"primary succeeds", nil, "primary", nil, []string{"primary"}},
		{"falls back", []string{"primary"}, "secondary", nil, []string{"primary", "secondary"}},
		{"all fail", []string{"primary", "secondary"}, "", ErrAllFailed, []string{"primary", "secondary"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			fg := stringGroup(3)
			var tried []string
			res, name, err := Call(context.Background(), fg, func(_ context.Context, name, v string) (string, error) {
				tried = append(tried, name)
				if slices.Contains(tc.failing, v) {
					return "", errTest
				}
				return "got:" + v, nil
			})
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if tc.wantErr != nil && !errors.Is(err, errTest) {
				t.Errorf("err = %v, should wrap the last provider error", err)
			}
			if name != tc.wantName {
				t.Errorf("name = %q, want %q", name, tc.wantName)
			}
			if tc.wantErr == nil && res != "got:"+tc.wantName {
				t.Errorf("res = %q", res)
			}
			if !slices.Equal(tried, tc.wantTried) {
				t.Errorf("tried = %v, want %v", tried, tc.wantTried)
			}
		})
	}
}

func TestCall_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	fg := stringGroup(2)
	failPrimary := func(_ context.Context, _ string, v string) (string, error) {
		if v == "primary" {
			return "", errTest
		}
		return v, nil
	}
	for range 2 {
		_, _, _ = Call(context.Background(), fg, failPrimary)
	}
	if fg.Breaker("primary").State() != StateOpen {
		t.Fatal("primary breaker should be open")
	}

	var tried []string
	_, name, err := Call(context.Background(), fg, func(_ context.Context, n, v string) (string, error) {
		tried = append(tried, n)
		return v, nil
	})
	if err != nil || name != "secondary" {
		t.Fatalf("name = %q err = %v", name, err)
	}
	if !slices.Equal(tried, []string{"secondary"}) {
		t.Errorf("tried = %v, primary should be skipped", tried)
	}
}

func TestCall_CancelledContextStops(t *testing.T) {
	t.Parallel()
	fg := stringGroup(1)
	ctx, cancel := context.WithCancel(context.Background())

	var tried []string
	_, _, err := Call(ctx, fg, func(ctx context.Context, n, _ string) (string, error) {
		tried = append(tried, n)
		cancel()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
		t.Fatalf("err = %v, want bare context.Canceled", err)
	}
	if !slices.Equal(tried, []string{"primary"}) {
		t.Errorf("tried = %v, fallback must not run after cancel", tried)
	}
	if fg.Breaker("primary").State() != StateClosed {
		t.Error("cancellation must not trip the breaker")
	}
}

func TestFallbackGroup_Names(t *testing.T) {
	t.Parallel()
	if got := stringGroup(1).Names(); !slices.Equal(got, []string{"primary", "secondary"}) {
		t.Errorf("Names = %v", got)
	}
	if stringGroup(1).Breaker("nope") != nil {
		t.Error("Breaker for unknown name should be nil")
	}
}

// ── Typed wrappers ───────────────────────────────────────────────────────────

func TestTranslatorFallback(t *testing.T) {
	t.Parallel()
	primary := &trmock.Translator{Err: errors.New("quota")}
	secondary := translate.Func(func(_ context.Context, req translate.Request) (translate.Result, error) {
		return translate.Result{Text: "hola:" + req.Text}, nil
	})

	fb := NewTranslatorFallback(primary, "gemini", FallbackConfig{})
	fb.AddFallback("openai", secondary)

	res, err := fb.Translate(context.Background(), translate.Request{Text: "hi", TargetLang: "es"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Text != "hola:hi" || res.Provider != "openai" {
		t.Errorf("res = %+v, want text from openai", res)
	}
	if primary.CallCount() != 1 {
		t.Errorf("primary calls = %d, want 1", primary.CallCount())
	}
}

func TestTranslatorFallback_KeepsBackendProviderName(t *testing.T) {
	t.Parallel()
	fb := NewTranslatorFallback(&trmock.Translator{}, "primary", FallbackConfig{})
	res, err := fb.Translate(context.Background(), translate.Request{Text: "x", TargetLang: "de"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Provider != "mock" {
		t.Errorf("Provider = %q, want mock", res.Provider)
	}
}

func TestTTSFallback(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{Err: errors.New("down")}
	secondary := &ttsmock.Provider{}

	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})
	fb.AddFallback("cartesia", secondary)

	clip, err := fb.Synthesize(context.Background(), tts.Request{Text: "hello", Lang: "en", Voice: "rachel"})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip.Data) != "hello" {
		t.Errorf("clip = %q", clip.Data)
	}

	if got := primary.Requests(); len(got) != 1 || got[0].Voice != "rachel" {
		t.Errorf("primary requests = %+v, want voice kept", got)
	}
	if got := secondary.Requests(); len(got) != 1 || got[0].Voice != "" || got[0].Lang != "en" {
		t.Errorf("secondary requests = %+v, want voice cleared and lang kept", got)
	}
	if names := fb.Group().Names(); !slices.Equal(names, []string{"elevenlabs", "cartesia"}) {
		t.Errorf("names = %v", names)
	}
}

func TestSTTFallback(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{StartStreamErr: errors.New("refused")}
	secondary := &sttmock.Provider{}

	fb := NewSTTFallback(primary, "deepgram", FallbackConfig{})
	fb.AddFallback("backup", secondary)

	sess, err := fb.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if sess == nil {
		t.Fatal("nil session")
	}
	if len(secondary.StartStreamCalls) != 1 || secondary.StartStreamCalls[0].Cfg.SampleRate != 16000 {
		t.Errorf("secondary calls = %+v", secondary.StartStreamCalls)
	}
}
