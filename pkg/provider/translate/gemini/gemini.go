// Package gemini implements translate.Translator with the Google Gemini API
// through google.golang.org/genai.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/MrWong99/lingualink/pkg/provider/translate"
)

// DefaultModel is the model used when none is configured.
const DefaultModel = "gemini-flash-lite-latest"

const (
	temperature     = 0.1
	maxOutputTokens = 1000
)

var _ translate.Translator = (*Translator)(nil)

// generator is the slice of *genai.Models used by the translator.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Option configures a [Translator].
type Option func(*Translator)

// WithModel selects the Gemini model.
func WithModel(model string) Option {
	return func(t *Translator) {
		if model != "" {
			t.model = model
		}
	}
}

// Translator calls Gemini's generateContent endpoint.
type Translator struct {
	models generator
	model  string
}

// New creates a Translator authenticated with apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Translator, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: apiKey must not be empty")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	return newWithGenerator(client.Models, opts...), nil
}

func newWithGenerator(g generator, opts ...Option) *Translator {
	t := &Translator{models: g, model: DefaultModel}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Translate implements translate.Translator.
func (t *Translator) Translate(ctx context.Context, req translate.Request) (translate.Result, error) {
	temp := float32(temperature)
	contents := []*genai.Content{
		genai.NewContentFromText(translate.Prompt(req), genai.RoleUser),
	}
	resp, err := t.models.GenerateContent(ctx, t.model, contents, &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: maxOutputTokens,
	})
	if err != nil {
		return translate.Result{}, fmt.Errorf("translate: gemini: %w", err)
	}

	text := translate.Clean(responseText(resp))
	if text == "" {
		return translate.Result{}, fmt.Errorf("translate: gemini: %w", translate.ErrUnavailable)
	}
	return translate.Result{Text: text, Provider: "gemini"}, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}
