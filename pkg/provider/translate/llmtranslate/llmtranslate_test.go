package llmtranslate

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/MrWong99/lingualink/pkg/provider/llm"
	llmmock "github.com/MrWong99/lingualink/pkg/provider/llm/mock"
	"github.com/MrWong99/lingualink/pkg/provider/translate"
)

func TestTranslate(t *testing.T) {
	t.Parallel()

	p := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "\"Hola mundo\"\n"}}
	tr := New(p, "openai")

	res, err := tr.Translate(context.Background(), translate.Request{Text: "Hello world", SourceLang: "en", TargetLang: "es"})
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if res.Text != "Hola mundo" || res.Provider != "openai" {
		t.Errorf("Translate() = %+v", res)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(calls))
	}
	req := calls[0].Req
	if req.Temperature != 0.1 || req.MaxTokens != 1000 {
		t.Errorf("temperature/maxTokens = %v/%d, want 0.1/1000", req.Temperature, req.MaxTokens)
	}
	if !strings.Contains(req.Messages[0].Content, "from en to es") {
		t.Errorf("prompt = %q", req.Messages[0].Content)
	}
}

func TestTranslate_Errors(t *testing.T) {
	t.Parallel()

	t.Run("backend error", func(t *testing.T) {
		t.Parallel()
		boom := errors.New("boom")
		tr := New(&llmmock.Provider{CompleteErr: boom}, "x")
		if _, err := tr.Translate(context.Background(), translate.Request{Text: "a", TargetLang: "b"}); !errors.Is(err, boom) {
			t.Errorf("err = %v, want boom", err)
		}
	})

	t.Run("empty reply", func(t *testing.T) {
		t.Parallel()
		tr := New(&llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: " \"\" "}}, "x")
		if _, err := tr.Translate(context.Background(), translate.Request{Text: "a", TargetLang: "b"}); !errors.Is(err, translate.ErrUnavailable) {
			t.Errorf("err = %v, want ErrUnavailable", err)
		}
	})
}
