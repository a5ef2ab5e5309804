// Package llmtranslate implements translate.Translator on top of any
// llm.Provider.
package llmtranslate

import (
	"context"
	"fmt"

	"github.com/MrWong99/lingualink/pkg/provider/llm"
	"github.com/MrWong99/lingualink/pkg/provider/translate"
)

const (
	defaultTemperature = 0.1
	defaultMaxTokens   = 1000
)

var _ translate.Translator = (*Translator)(nil)

// Option configures a [Translator].
type Option func(*Translator)

// WithTemperature overrides the sampling temperature.
func WithTemperature(t float64) Option {
	return func(tr *Translator) { tr.temperature = t }
}

// WithMaxTokens overrides the completion token cap.
func WithMaxTokens(n int) Option {
	return func(tr *Translator) { tr.maxTokens = n }
}

// Translator asks an LLM for a translation with a fixed instruction prompt.
type Translator struct {
	llm         llm.Provider
	name        string
	temperature float64
	maxTokens   int
}

// New returns a Translator using p. name is reported in [translate.Result].
func New(p llm.Provider, name string, opts ...Option) *Translator {
	t := &Translator{
		llm:         p,
		name:        name,
		temperature: defaultTemperature,
		maxTokens:   defaultMaxTokens,
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Translate implements translate.Translator.
func (t *Translator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	resp, err := t.llm.Complete(ctx, llm.CompletionRequest{
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: translate.Prompt(req)}},
		Temperature: t.temperature,
		MaxTokens:   t.maxTokens,
	})
	if err != nil {
		return translate.Result{}, fmt.Errorf("translate: %s: %w", t.name, err)
	}
	text := translate.Clean(resp.Content)
	if text == "" {
		return translate.Result{}, fmt.Errorf("translate: %s: %w", t.name, translate.ErrUnavailable)
	}
	return translate.Result{Text: text, Provider: t.name}, nil
}
