// Package translate defines the Translator interface for text translation
// backends.
//
// A Translator turns one utterance from a source language into a target
// language. Requests are idempotent and side-effect free from the caller's
// point of view, which lets the pipeline resend a superseding text or cache
// results freely.
//
// Implementations must be safe for concurrent use.
package translate

import (
	"context"
	"errors"
	"strings"
)

// AutoDetect is the source language value asking the backend to detect the
// language itself.
const AutoDetect = "auto"

// ErrUnavailable is returned when a backend produced no usable translation,
// for example an empty reply. Callers treat it like any other failure.
var ErrUnavailable = errors.New("translate: no translation available")

// Request is one translation request.
type Request struct {
	Text       string
	SourceLang string
	TargetLang string
}

// Result is a successful translation.
type Result struct {
	// Text is the translated text.
	Text string

	// Provider names the backend that produced Text.
	Provider string

	// Cached is true when Text was served from a cache.
	Cached bool
}

// Translator is the abstraction over any translation backend.
type Translator interface {
	// Translate blocks until the translation is available, the backend
	// fails, or ctx is done.
	Translate(ctx context.Context, req Request) (Result, error)
}

// Func adapts an ordinary function to the [Translator] interface.
type Func func(ctx context.Context, req Request) (Result, error)

// Translate calls f.
func (f Func) Translate(ctx context.Context, req Request) (Result, error) { return f(ctx, req) }

// Prompt returns the instruction sent to generative backends. An empty
// source language is rendered as [AutoDetect].
func Prompt(req Request) string {
	src := req.SourceLang
	if src == "" {
		src = AutoDetect
	}
	return "Translate the following text from " + src + " to " + req.TargetLang +
		". Return ONLY the translated text without any explanations or extra characters:\n\n\"" +
		req.Text + "\""
}

// Clean trims whitespace and a single pair of surrounding double quotes that
// generative backends sometimes echo from the prompt.
func Clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "\"")
	s = strings.TrimSuffix(s, "\"")
	return strings.TrimSpace(s)
}
