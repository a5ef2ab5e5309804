package resilience

import (
	"context"

	"github.com/MrWong99/lingualink/pkg/provider/translate"
)

var _ translate.Translator = (*TranslatorFallback)(nil)

// TranslatorFallback implements [translate.Translator] over a
// [FallbackGroup].
type TranslatorFallback struct {
	group *FallbackGroup[translate.Translator]
}

// NewTranslatorFallback returns a fallback translator with primary first.
func NewTranslatorFallback(primary translate.Translator, primaryName string, cfg FallbackConfig) *TranslatorFallback {
	if cfg.Kind == "" {
		cfg.Kind = "translate"
	}
	return &TranslatorFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback registers another backend.
func (f *TranslatorFallback) AddFallback(name string, t translate.Translator) {
	f.group.AddFallback(name, t)
}

// Translate returns the first successful translation. Result.Provider is
// set to the entry name when the backend left it empty.
func (f *TranslatorFallback) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	res, name, err := Call(ctx, f.group, func(ctx context.Context, _ string, t translate.Translator) (translate.Result, error) {
		return t.Translate(ctx, req)
	})
	if err != nil {
		return translate.Result{}, err
	}
	if res.Provider == "" {
		res.Provider = name
	}
	return res, nil
}
